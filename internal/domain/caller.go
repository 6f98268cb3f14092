package domain

// Caller identifies who is invoking the pipeline. It is resolved once per
// request by the session provider and passed explicitly to every call.
type Caller struct {
	OrganizationID string // empty for platform keys
	IsAdmin        bool
}

// IsPlatform reports whether the caller belongs to no organization.
func (c Caller) IsPlatform() bool {
	return c.OrganizationID == ""
}

// CanList reports whether the entry is part of the caller's knowledge base
// listing: admins of an organization see their entries and the global ones,
// everyone else sees the global entries only.
func (c Caller) CanList(k *KnowledgeEntry) bool {
	if k.IsGlobal() {
		return true
	}
	return c.IsAdmin && c.OrganizationID != "" && k.OrganizationID == c.OrganizationID
}

// CanManage reports whether the caller may modify or delete the entry.
// Admins manage exactly their own scope; platform admins own the global one.
func (c Caller) CanManage(k *KnowledgeEntry) bool {
	return c.IsAdmin && k.OrganizationID == c.OrganizationID
}
