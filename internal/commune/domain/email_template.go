package domain

import "time"

// EmailTemplate is an admin-editable mail template. Identifier is unique
// and immutable once set.
type EmailTemplate struct {
	ID         string
	Identifier string
	Subject    string
	Body       string
	Groups     []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TemplateGroup declares which variables a group of templates may use.
type TemplateGroup struct {
	Value string
	Label string
	Vars  []string
}

// TemplateGroups lists the known template groups. Templates may only be
// assigned to groups declared here.
var TemplateGroups = []TemplateGroup{
	{
		Value: "growthGithub",
		Label: "Growth Github",
		Vars: []string{
			"SIGNUP_URL", "CITY_KEY", "CITY_NAME",
			"USERNAME", "EMAIL", "AVATAR_URL",
			"FOLLOWERS", "FOLLOWING", "REPOS", "GISTS",
			"NAME", "FIRSTNAME", "WEBSITE", "COMPANY",
			"ADMIN_NAME", "ADMIN_FIRSTNAME", "ADMIN_EMAIL",
			"ADMIN_TITLE", "ADMIN_IMAGE_URL",
		},
	},
	{
		Value: "newUser",
		Label: "New User Notification",
		Vars:  []string{"NAME", "EMAIL", "CITY_KEY", "CITY_NAME", "PROFILE_URL"},
	},
}

// IsTemplateGroup reports whether value names a declared group.
func IsTemplateGroup(value string) bool {
	for _, g := range TemplateGroups {
		if g.Value == value {
			return true
		}
	}
	return false
}
