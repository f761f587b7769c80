package services

import (
	"github.com/dmitrijs2005/nutrisync/internal/client/connectivity"
	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/reconcile"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/records"
	"github.com/dmitrijs2005/nutrisync/internal/client/store"
)

// Facade groups the services of every entity of one store.
type Facade struct {
	Foods   *OfflineService[models.Food]
	Entries *OfflineService[models.DiaryEntry]
	Weights *OfflineService[models.Weight]
	Water   *OfflineService[models.Water]
}

func NewFacade(st *store.Store, gw gateway.Gateway, signal connectivity.Signal, opts Options) *Facade {
	foods := reconcile.NewCollection[models.Food](st.Foods)
	return &Facade{
		Foods:   NewOfflineService(st, foodsOf, gw, signal, nil, opts),
		Entries: NewOfflineService(st, entriesOf, gw, signal, foods, opts),
		Weights: NewOfflineService(st, weightsOf, gw, signal, nil, opts),
		Water:   NewOfflineService(st, waterOf, gw, signal, nil, opts),
	}
}

func foodsOf(st *store.Store) records.Repository[models.Food]         { return st.Foods }
func entriesOf(st *store.Store) records.Repository[models.DiaryEntry] { return st.Entries }
func weightsOf(st *store.Store) records.Repository[models.Weight]     { return st.Weights }
func waterOf(st *store.Store) records.Repository[models.Water]        { return st.Water }

// Collections returns the store's collections in pull order, for the sync
// engine.
func Collections(st *store.Store) []reconcile.Collection {
	return []reconcile.Collection{
		reconcile.NewCollection[models.Food](st.Foods),
		reconcile.NewCollection[models.DiaryEntry](st.Entries),
		reconcile.NewCollection[models.Weight](st.Weights),
		reconcile.NewCollection[models.Water](st.Water),
	}
}
