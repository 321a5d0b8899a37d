package constants

// Profile IDs seeded by the bootstrap set
const (
	ProfileSystemAdmin  = "system_admin"
	ProfileStandardUser = "standard_user"
)

// IsSuperUser checks if a profile ID has super user privileges
func IsSuperUser(profileID string) bool {
	return profileID == ProfileSystemAdmin
}
