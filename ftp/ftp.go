// Package ftp is an FTP control channel engine.
//
// A Server accepts control connections and runs one Session per connection.
// The session reads command lines, checks them against a static verb table
// and the login gate, runs the handler and writes RFC 959 numeric replies.
// Listings and file transfers go over a passive data channel that the
// session keeps open across transfers. Files live in a storage.Storage and
// logins are checked by a users.Authenticator.
package ftp

// StatusCode is a type for FTP status codes
type StatusCode = int

const (
	// Informational codes (1xx)
	StatusFileStatusOK StatusCode = 150 // File status okay; about to open data connection

	// Success codes (2xx)
	StatusCommandOK                       StatusCode = 200 // Command okay
	StatusSystemStatus                    StatusCode = 211 // System status, or system help reply
	StatusFileStatus                      StatusCode = 213 // File status
	StatusHelpMessage                     StatusCode = 214 // Help message
	StatusNameSystemType                  StatusCode = 215 // NAME system type
	StatusServiceReadyForNewUser          StatusCode = 220 // Service ready for new user
	StatusServiceClosingControlConnection StatusCode = 221 // Service closing control connection
	StatusClosingDataConnection           StatusCode = 226 // Closing data connection; requested file action successful
	StatusEnteringPassiveMode             StatusCode = 227 // Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	StatusUserLoggedIn                    StatusCode = 230 // User logged in, proceed
	StatusFileActionOK                    StatusCode = 250 // Requested file action okay, completed
	StatusPathnameCreated                 StatusCode = 257 // "PATHNAME" created

	// Intermediate codes (3xx)
	StatusUserNameOK StatusCode = 331 // User name okay, need password

	// Transient Negative Completion codes (4xx)
	StatusCantOpenDataConnection StatusCode = 425 // Can't open data connection
	StatusLocalProcessingError   StatusCode = 451 // Requested action aborted: local error in processing

	// Permanent Negative Completion codes (5xx)
	StatusSyntaxErrorInParameters StatusCode = 501 // Syntax error in parameters or arguments
	StatusNotLoggedIn             StatusCode = 530 // Not logged in
	StatusFileUnavailable         StatusCode = 550 // Requested action not taken; File unavailable
)

// Command is an FTP verb, always upper case.
type Command = string

const (
	// Authentication and User Commands
	USER Command = "USER" // Send username
	PASS Command = "PASS" // Send password
	REIN Command = "REIN" // Reinitialize, log out without closing the connection

	// Transfer Parameter Commands
	TYPE Command = "TYPE" // Set data transfer type (ASCII/Binary)
	PORT Command = "PORT" // Active mode address, acknowledged only
	PASV Command = "PASV" // Enter passive mode
	OPTS Command = "OPTS" // Set an option

	// FTP Service Commands
	RETR Command = "RETR" // Retrieve a file
	STOR Command = "STOR" // Store a file
	CWD  Command = "CWD"  // Change working directory
	MKD  Command = "MKD"  // Make directory
	RMD  Command = "RMD"  // Remove directory

	// Informational Commands
	PWD  Command = "PWD"  // Print working directory
	LIST Command = "LIST" // List directory contents
	NLST Command = "NLST" // Get concise list of filenames
	MDTM Command = "MDTM" // Modification time of a file
	SIZE Command = "SIZE" // Size of a file
	SYST Command = "SYST" // Get operating system type
	FEAT Command = "FEAT" // List extensions
	HELP Command = "HELP" // Get help

	// Miscellaneous
	NOOP Command = "NOOP" // No operation (often used to keep connections alive)
	QUIT Command = "QUIT" // Disconnect from the server
)
