package repositories

import "github.com/linskybing/gpulab/docstore"

type Repos struct {
	Directory DirectoryRepo
	Ledger    LedgerRepo
	Audit     AuditRepo
}

func New(store docstore.Store) *Repos {
	return &Repos{
		Directory: NewStoreDirectoryRepo(store),
		Ledger:    NewStoreLedgerRepo(store),
		Audit:     &DBAuditRepo{},
	}
}
