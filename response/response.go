package response

import "github.com/linskybing/gpulab/models"

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type SSHResponse struct {
	SSHCommand string `json:"ssh_command"`
}

type ReleaseResponse struct {
	Message        string  `json:"message"`
	AccruedSeconds float64 `json:"accrued_seconds"`
	AccruedPretty  string  `json:"accrued_pretty"`
}

type StudentResponse struct {
	Student     models.Student `json:"student"`
	UsagePretty string         `json:"usage_pretty"`
}
