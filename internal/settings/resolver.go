package settings

import (
	"sort"

	"github.com/alexscott/userman/internal/db/models"
)

// SelfToken is the placeholder inside array settings that resolves to
// the user's linked extension.
const SelfToken = "self"

// LocaleKeys is the fixed set LocaleSetting accepts.
var LocaleKeys = []string{"language", "timezone", "dateformat", "timeformat", "datetimeformat"}

// UserWins marks a Resolution whose value came from the user's own row
// rather than a group.
const UserWins int64 = -1

// Directory is the slice of the aggregate view the resolver needs.
type Directory interface {
	UserByID(id uint64) (*models.User, error)
	GroupsByUserID(uid uint64) ([]models.Group, error)
}

// Resolution reports where an effective value came from.
type Resolution struct {
	Value     Value
	Module    string
	Key       string
	GroupID   int64
	GroupName string
}

// Resolver computes effective setting values with user-over-group
// precedence. Presence governs the walk: an explicitly stored false or
// empty value on the user wins over any group value.
type Resolver struct {
	users     *Store
	groups    *Store
	directory Directory
}

// NewResolver wires the two stores to the aggregate directory view.
func NewResolver(users, groups *Store, directory Directory) *Resolver {
	return &Resolver{users: users, groups: groups, directory: directory}
}

// CombinedSetting returns the effective value of (module, key) for the
// user. Absent means neither the user nor any of their groups stores
// the key.
func (r *Resolver) CombinedSetting(uid uint64, module, key string) (Value, error) {
	res, err := r.CombinedSettingDetailed(uid, module, key)
	if err != nil {
		return Absent(), err
	}

	return res.Value, nil
}

// CombinedSettingDetailed resolves like CombinedSetting and also names
// the group that supplied the value, with GroupID UserWins and
// GroupName "user" when the user's own setting won.
func (r *Resolver) CombinedSettingDetailed(uid uint64, module, key string) (Resolution, error) {
	res := Resolution{Value: Absent(), Module: module, Key: key}

	own, err := r.users.Get(uid, module, key)
	if err != nil {
		return res, err
	}

	if own.Present() {
		res.Value = own
		res.GroupID = UserWins
		res.GroupName = "user"

		return r.substituteSelf(uid, res)
	}

	groups, err := r.directory.GroupsByUserID(uid)
	if err != nil {
		return res, err
	}

	groups = sortedByPriority(groups)

	for i := range groups {
		val, errGet := r.groups.Get(groups[i].ID, module, key)
		if errGet != nil {
			return res, errGet
		}

		if !val.Present() {
			continue
		}

		res.Value = val
		res.GroupID = int64(groups[i].ID)
		res.GroupName = groups[i].Groupname

		return r.substituteSelf(uid, res)
	}

	return res, nil
}

// substituteSelf replaces the "self" array element with the user's
// linked extension, unless the user has none.
func (r *Resolver) substituteSelf(uid uint64, res Resolution) (Resolution, error) {
	if !res.Value.IsArray() {
		return res, nil
	}

	elems := res.Value.Strings()

	idx := -1

	for i, e := range elems {
		if e == SelfToken {
			idx = i
			break
		}
	}

	if idx < 0 {
		return res, nil
	}

	user, err := r.directory.UserByID(uid)
	if err != nil {
		return res, err
	}

	if user.DefaultExtension == models.NoExtension || user.DefaultExtension == "" {
		return res, nil
	}

	out := make([]string, len(elems))
	copy(out, elems)
	out[idx] = user.DefaultExtension
	res.Value = Array(out)

	return res, nil
}

// GlobalSetting resolves within the reserved shared module.
func (r *Resolver) GlobalSetting(uid uint64, key string) (Value, error) {
	return r.CombinedSetting(uid, ModuleGlobal, key)
}

// GlobalSettingDetailed is the detailed variant over the shared module.
func (r *Resolver) GlobalSettingDetailed(uid uint64, key string) (Resolution, error) {
	return r.CombinedSettingDetailed(uid, ModuleGlobal, key)
}

// LocaleSetting resolves one of the locale keys stored as row columns
// rather than settings rows. The user's column wins when non-empty,
// otherwise the first group by ascending priority with a non-empty
// column; "" means nothing is configured.
func (r *Resolver) LocaleSetting(uid uint64, key string) (string, error) {
	if !validLocaleKey(key) {
		return "", ErrInvalidKey
	}

	user, err := r.directory.UserByID(uid)
	if err != nil {
		return "", err
	}

	if v := userLocale(user, key); v != "" {
		return v, nil
	}

	groups, err := r.directory.GroupsByUserID(uid)
	if err != nil {
		return "", err
	}

	sorted := sortedByPriority(groups)

	for i := range sorted {
		if v := groupLocale(&sorted[i], key); v != "" {
			return v, nil
		}
	}

	return "", nil
}

// sortedByPriority returns a copy of the groups in ascending priority.
// The caller's slice is left untouched; the Directory implementation
// may hand out shared backing arrays.
func sortedByPriority(groups []models.Group) []models.Group {
	sorted := make([]models.Group, len(groups))
	copy(sorted, groups)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return sorted
}

func validLocaleKey(key string) bool {
	for _, k := range LocaleKeys {
		if k == key {
			return true
		}
	}

	return false
}

func userLocale(u *models.User, key string) string {
	switch key {
	case "language":
		return u.Language
	case "timezone":
		return u.Timezone
	case "dateformat":
		return u.DateFormat
	case "timeformat":
		return u.TimeFormat
	default:
		return u.DateTimeFormat
	}
}

func groupLocale(g *models.Group, key string) string {
	switch key {
	case "language":
		return g.Language
	case "timezone":
		return g.Timezone
	case "dateformat":
		return g.DateFormat
	case "timeformat":
		return g.TimeFormat
	default:
		return g.DateTimeFormat
	}
}
