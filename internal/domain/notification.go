package domain

// Notification is the immutable payload handed to the event dispatcher after
// a transaction commits. The consumer turns it into an outbound email.
type Notification struct {
	Email   string
	Code    string
	Purpose OTPPurpose
}
