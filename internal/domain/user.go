package domain

type User struct {
	ID    int32  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	// PushToken is the device registration token for push notifications.
	PushToken string `json:"-"`
}
