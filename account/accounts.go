package account

import (
	"crypto/sha256"
	"encoding/hex"
	"sqlreview/bizerror"
	"sqlreview/idgen"
	"sqlreview/persistence"
	"sqlreview/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	UpdateBasicAuthSecretFunc = UpdateBasicAuthSecret
	QueryUsersFunc            = QueryUsers
	CreateUserFunc            = CreateUser
	UpdateUserFunc            = UpdateUser
	UpdateGrantsFunc          = UpdateGrants
)

func HashSha256(raw string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

func UpdateBasicAuthSecret(u *BasicAuthUpdating, s *session.Session) error {
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	user := User{}
	if err := db.Model(&User{}).Where(&User{ID: s.Identity.ID, Secret: HashSha256(u.OriginalSecret)}).Scan(&user).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return bizerror.ErrInvalidPassword
		}
		return err
	}
	return db.Model(&User{}).Where(&User{ID: s.Identity.ID}).Update(&User{Secret: HashSha256(u.NewSecret)}).Error
}

func QueryUsers(s *session.Session) ([]UserInfo, error) {
	users := []UserInfo{}
	if err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Model(&User{}).Order("id ASC").Scan(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func CreateUser(c *UserCreation, s *session.Session) (*UserInfo, error) {
	if !s.Perms.IsSuperuser() {
		return nil, bizerror.ErrForbidden
	}
	user := User{ID: idgen.NextID(idWorker), Name: c.Name, Nickname: c.Nickname, Email: c.Email, Secret: HashSha256(c.Secret)}
	if err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Create(&user).Error; err != nil {
		return nil, err
	}
	return &UserInfo{ID: user.ID, Name: user.Name, Nickname: user.Nickname, Email: user.Email}, nil
}

// UpdateUser changes the profile of a user. Users may update themselves.
func UpdateUser(userID types.ID, c *UserUpdation, s *session.Session) error {
	if !s.Perms.IsSuperuser() && userID != s.Identity.ID {
		return bizerror.ErrForbidden
	}
	return persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		user := User{}
		if err := tx.Where(&User{ID: userID}).First(&user).Error; err != nil {
			return err
		}
		return tx.Model(&User{}).Where(&User{ID: userID}).
			Updates(map[string]interface{}{"nickname": c.Nickname, "email": c.Email}).Error
	})
}

// UpdateGrants replaces the roles and groups of a user. Sessions pick the change up on refresh.
func UpdateGrants(userID types.ID, g *GrantsUpdating, s *session.Session) error {
	if !s.Perms.IsSuperuser() {
		return bizerror.ErrForbidden
	}
	return persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Transaction(func(tx *gorm.DB) error {
		user := User{}
		if err := tx.Where(&User{ID: userID}).First(&user).Error; err != nil {
			return err
		}
		if len(g.Roles) > 0 {
			var found int
			if err := tx.Model(&Role{}).Where("id IN (?)", g.Roles).Count(&found).Error; err != nil {
				return err
			}
			if found != len(g.Roles) {
				return &bizerror.ErrBadParam{Cause: errUnknownRole}
			}
		}

		if err := tx.Where(&UserRoleBinding{UserID: userID}).Delete(&UserRoleBinding{}).Error; err != nil {
			return err
		}
		if err := tx.Where(&UserAuthGroup{UserID: userID}).Delete(&UserAuthGroup{}).Error; err != nil {
			return err
		}
		if err := tx.Where(&UserResourceGroup{UserID: userID}).Delete(&UserResourceGroup{}).Error; err != nil {
			return err
		}

		for _, role := range g.Roles {
			if err := tx.Create(&UserRoleBinding{ID: idgen.NextID(idWorker), UserID: userID, RoleID: role}).Error; err != nil {
				return err
			}
		}
		for _, group := range g.AuthGroups {
			if err := tx.Create(&UserAuthGroup{ID: idgen.NextID(idWorker), UserID: userID, AuthGroup: group}).Error; err != nil {
				return err
			}
		}
		for _, group := range g.ResourceGroups {
			if err := tx.Create(&UserResourceGroup{ID: idgen.NextID(idWorker), UserID: userID, ResourceGroupID: group}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
