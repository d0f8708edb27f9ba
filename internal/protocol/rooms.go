package protocol

const (
	userRoomPrefix         = "user_"
	notificationRoomPrefix = "notifications_"
)

// UserRoom is the personal room every connection of a user joins.
func UserRoom(userID string) string { return userRoomPrefix + userID }

func NotificationRoom(userID string) string { return notificationRoomPrefix + userID }

// RoomsFor lists the rooms a connection of userID joins on connect.
func RoomsFor(userID string) []string {
	return []string{UserRoom(userID), NotificationRoom(userID)}
}
