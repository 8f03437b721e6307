package domain

// MFAEnrollment is returned once when a TOTP secret is generated. The
// plaintext backup codes are shown here and never persisted in recoverable
// form.
type MFAEnrollment struct {
	Secret          string   // base32 TOTP secret
	ProvisioningURI string   // otpauth:// URL for QR code generation
	BackupCodes     []string // single-use recovery codes, shown exactly once
}

// MFAMethods lists the second factors accepted during a login challenge.
var MFAMethods = []string{"totp", "backup_code"}
