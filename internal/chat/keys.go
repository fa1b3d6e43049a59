package chat

// Key layout in the backing store. Channels double as pub/sub topics.
const (
	// ServerName is the sender name on system announcements.
	ServerName = "SERVER"
	// BroadcastChannel is the reserved channel every identified user joins.
	BroadcastChannel = "all"
)

// ChannelKey returns the pub/sub topic for a channel name ("channel:<name>").
func ChannelKey(name string) string {
	return "channel:" + name
}

// UserKey returns the profile hash key for a username ("user:<name>").
func UserKey(username string) string {
	return "user:" + username
}

// ChannelsKey returns the membership set key for a username ("channels:<name>").
func ChannelsKey(username string) string {
	return "channels:" + username
}
