package handlers

import (
	"socialflow/database"
	"socialflow/services"

	"github.com/go-playground/validator/v10"
)

type Handler struct {
	db         *database.Database
	dispatcher *services.Dispatcher
	validate   *validator.Validate
	cronSecret string
}

func NewHandler(db *database.Database, dispatcher *services.Dispatcher, cronSecret string) *Handler {
	return &Handler{
		db:         db,
		dispatcher: dispatcher,
		validate:   validator.New(),
		cronSecret: cronSecret,
	}
}
