package rbac

import "github.com/pkg/errors"

var ErrForbidden = errors.New("forbidden")

// RequireTeacherOrAdmin guards test authoring operations.
func RequireTeacherOrAdmin(role string) error {
	if role == RoleTeacher || role == RoleAdmin {
		return nil
	}
	return errors.Wrapf(ErrForbidden, "role %q may not author tests", role)
}

// RequireOwner guards operations on a student's own attempt.
func RequireOwner(ownerID, userID string) error {
	if ownerID != "" && ownerID == userID {
		return nil
	}
	return errors.Wrap(ErrForbidden, "not your attempt")
}
