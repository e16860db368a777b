package order

import (
	"go.uber.org/fx"

	repo "github.com/Additional-Code/procura/internal/repository/order"
	projectsvc "github.com/Additional-Code/procura/internal/service/project"
)

// Module provides the order service to Fx, binding its store to the order
// repository and its project directory to the project service.
var Module = fx.Provide(
	NewService,
	func(r *repo.Repository) Store { return r },
	func(s *projectsvc.Service) ProjectDirectory { return s },
)
