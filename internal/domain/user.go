package domain

import "strings"

// RoleAdmin is the user role that sees reports from every company.
const RoleAdmin = "admin"

// User is a registered user. The users collection is owned by the identity
// side of the platform and only read here.
type User struct {
	ID          string `bson:"_id" json:"id"`
	FullName    string `bson:"fullName" json:"fullName"`
	Email       string `bson:"email" json:"email"`
	Title       string `bson:"title,omitempty" json:"title,omitempty"`
	CompanyName string `bson:"companyName" json:"companyName"`
	CompanyID   string `bson:"companyID" json:"companyID"`
	Role        string `bson:"role" json:"role"`
	SiteID      string `bson:"siteID" json:"siteID"`
	JobID       string `bson:"jobID" json:"jobID"`
	CreatedAt   string `bson:"createdAt" json:"createdAt"`
	BirthDate   string `bson:"birthDate" json:"birthDate"`
	JoinedDate  string `bson:"joinedDate" json:"joinedDate"`
	ProfilePic  string `bson:"profilePic" json:"profilePic"`
}

// IsAdmin returns true if the user may see every company's records.
func (u *User) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}

// CanSeeCompany reports whether the user may see records of companyName.
func (u *User) CanSeeCompany(companyName string) bool {
	if u.IsAdmin() {
		return true
	}
	return u.CompanyName != "" && u.CompanyName == companyName
}

// Company is the company collection record; the logo is shown on export covers.
type Company struct {
	ID        string `bson:"_id" json:"id"`
	CompanyID string `bson:"company_id" json:"company_id"`
	Name      string `bson:"name" json:"name"`
	Logo      string `bson:"logo" json:"logo"`
}

// Attendance records the last login of a user, keyed by full name.
type Attendance struct {
	ID            string `bson:"_id" json:"id"`
	LastLoginTime int64  `bson:"last_login_time" json:"last_login_time"` // epoch millis
}
