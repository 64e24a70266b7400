package model

type NotificationChannel string

const NotificationChannelEmail NotificationChannel = "email"

// Notification is an outbound message rendered from an appointment event.
type Notification struct {
	Channel   NotificationChannel
	Recipient string
	Subject   string
	Content   string
}
