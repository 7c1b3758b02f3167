package handlers

import "github.com/linskybing/gpulab/services"

type Handlers struct {
	GPU     *GPUHandler
	Student *StudentHandler
	Admin   *AdminHandler
	WS      *WSHandler
}

func New(svc *services.Services) *Handlers {
	return &Handlers{
		GPU:     NewGPUHandler(svc.Session),
		Student: NewStudentHandler(svc.Session),
		Admin:   NewAdminHandler(svc.Admin, svc.Audit),
		WS:      NewWSHandler(svc.Session),
	}
}
