package domain

import "errors"

var validationErrors = []error{
	ErrInvalidAmount,
	ErrInvalidStartDate,
	ErrInvalidEndDate,
	ErrInvalidSubscriptionType,
	ErrInvalidPaymentMethod,
	ErrInvalidInitialStatus,
	ErrInvalidPendingAmount,
	ErrInvalidID,
	ErrInvalidUser,
	ErrInvalidActor,
	ErrInvalidCourse,
}

var notFoundErrors = []error{
	ErrSubscriptionNotFound,
	ErrPaymentEntryNotFound,
	ErrUserNotFound,
	ErrCourseNotFound,
}

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	return matchesAny(err, validationErrors)
}

func IsNotFound(err error) bool {
	return matchesAny(err, notFoundErrors)
}

func matchesAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
