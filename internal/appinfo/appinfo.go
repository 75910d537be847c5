// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "Eliksir Analytics"

	// DirName is the directory name used for storing application data.
	// Location: %LOCALAPPDATA%/eliksir/ (Windows) or ~/.config/eliksir/ (other)
	DirName = "eliksir"

	// MutexName is the Windows mutex name for single instance control.
	MutexName = "Local\\eliksir-analytics"

	// LockFileName is the lock file name for single instance control.
	LockFileName = "eliksir.lock"

	// JWTSecretFileName holds the generated token signing key when none is configured.
	JWTSecretFileName = "jwt_secret"

	// PasswordFileName receives a generated admin password for one-time pickup.
	PasswordFileName = "generated_password.txt"

	// DatabaseFileName is the SQLite database file name.
	DatabaseFileName = "eliksir.sqlite"

	// TokenIssuer is the iss claim of every token this service signs.
	TokenIssuer = "eliksir"
)
