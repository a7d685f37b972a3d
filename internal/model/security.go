package model

type PasswordPolicy struct {
	MinLength           int      `json:"min_length" mapstructure:"min_length"`
	RequireUppercase    bool     `json:"require_uppercase" mapstructure:"require_uppercase"`
	RequireLowercase    bool     `json:"require_lowercase" mapstructure:"require_lowercase"`
	RequireNumbers      bool     `json:"require_numbers" mapstructure:"require_numbers"`
	RequireSpecialChars bool     `json:"require_special_chars" mapstructure:"require_special_chars"`
	AllowedSpecialChars string   `json:"allowed_special_chars" mapstructure:"allowed_special_chars"`
	BlockedPasswords    []string `json:"blocked_passwords" mapstructure:"blocked_passwords"` // Common/weak passwords to block
}

// DefaultPasswordPolicy mirrors the minimum the clinic apps enforce.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:           8,
		RequireLowercase:    true,
		RequireNumbers:      true,
		AllowedSpecialChars: "!@#$%^&*()-_=+[]{};:,.<>?/|~",
		BlockedPasswords:    []string{"password", "12345678", "qwerty123", "senha123"},
	}
}
