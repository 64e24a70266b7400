package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-booking/internal/repository"
)

type scheduleRepository struct {
	db sqlx.ExtContext
}

type appointmentRepository struct {
	db sqlx.ExtContext
}

type serviceRepository struct {
	db sqlx.ExtContext
}

func NewScheduleRepository(db *sqlx.DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func NewServiceRepository(db *sqlx.DB) repository.ServiceRepository {
	return &serviceRepository{db: db}
}
