package service

import "errors"

var (
	ErrNoPlans       = errors.New("please select at least one plan")
	ErrNoMetrics     = errors.New("please select at least one metric")
	ErrInvalidRange  = errors.New("from date is after to date")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrNotStarted    = errors.New("service not started")
	ErrNoActivePlans = errors.New("no active plans found in the database")
	ErrStopped       = errors.New("service stopped before the job ran")
)
