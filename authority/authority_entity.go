package authority

import (
	"strings"

	"github.com/fundwit/go-commons/types"
)

const (
	PermSqlSubmit                  = "sql.sql_submit"
	PermSqlReview                  = "sql.sql_review"
	PermSqlExecute                 = "sql.sql_execute"
	PermSqlExecuteForResourceGroup = "sql.sql_execute_for_resource_group"
	PermSuperuser                  = "system:superuser"
)

type Permissions []string

func (c Permissions) HasRole(role string) bool {
	for _, v := range c {
		if strings.EqualFold(v, role) {
			return true
		}
	}
	return false
}

func (c Permissions) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.HasRole(role) {
			return true
		}
	}
	return false
}

func (c Permissions) IsSuperuser() bool {
	return c.HasRole(PermSuperuser)
}

// AuthGroups are the review groups a user belongs to, e.g. "dba", "leader".
type AuthGroups []string

func (c AuthGroups) Has(group string) bool {
	for _, v := range c {
		if strings.EqualFold(v, group) {
			return true
		}
	}
	return false
}

// ResourceGroups are the resource groups a user is a member of.
type ResourceGroups []types.ID

func (c ResourceGroups) Has(groupID types.ID) bool {
	for _, v := range c {
		if v == groupID {
			return true
		}
	}
	return false
}
