package appfs

import "embed"

// FS holds the SQL migrations, the email templates and the common passwords list.
//go:embed migrations/*.sql assets/templates/email/* assets/common-passwords.txt
var FS embed.FS

// CommonPasswordsFile is the path of the common passwords list in FS.
const CommonPasswordsFile = "assets/common-passwords.txt"
