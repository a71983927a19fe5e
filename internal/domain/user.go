package domain

// User is a directory snapshot of a customer or owner.
type User struct {
	ID    string
	Name  string
	Email string
}
