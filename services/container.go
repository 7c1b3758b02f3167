package services

import "github.com/linskybing/gpulab/repositories"

type Services struct {
	Session *SessionService
	Admin   *AdminService
	Audit   *AuditService
}

func New(repos *repositories.Repos) *Services {
	return &Services{
		Session: NewSessionService(repos),
		Admin:   NewAdminService(repos),
		Audit:   NewAuditService(repos),
	}
}
