package notify

import "fmt"

const signature = "\n\nRegards,\nThe MediaBib team"

// Welcome is sent after a successful self-registration
func Welcome(to, name, cardNumber, libraryName string) Message {
	if libraryName == "" {
		libraryName = "-"
	}
	return Message{
		To:      to,
		Subject: "Welcome to MediaBib!",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"Your reader account has been created on MediaBib.\n\n"+
			"Your card number: %s\n"+
			"Your library: %s\n\n"+
			"You can now sign in with your username and password."+signature,
			name, cardNumber, libraryName),
	}
}

// AccountCreated carries the generated credential of a staff-created reader
func AccountCreated(to, name, username, password string) Message {
	return Message{
		To:      to,
		Subject: "Your MediaBib account has been created",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"Your reader account has been created on MediaBib.\n\n"+
			"Username: %s\n"+
			"Password: %s\n\n"+
			"Please change this password after your first sign-in."+signature,
			name, username, password),
	}
}

// PasswordReset carries a credential generated by staff
func PasswordReset(to, name, password string) Message {
	return Message{
		To:      to,
		Subject: "Your MediaBib password has been reset",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"Your MediaBib password has been reset.\n\n"+
			"New password: %s\n\n"+
			"Please change this password after signing in."+signature,
			name, password),
	}
}
