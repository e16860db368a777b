package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/Additional-Code/procura/internal/transport/http/order"
	projecttransport "github.com/Additional-Code/procura/internal/transport/http/project"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	projecttransport.Module,
)
