package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/procura/internal/cache"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/logger"
	"github.com/Additional-Code/procura/internal/messaging"
	"github.com/Additional-Code/procura/internal/observability"
	repositoryorder "github.com/Additional-Code/procura/internal/repository/order"
	repositoryproject "github.com/Additional-Code/procura/internal/repository/project"
	grpcserver "github.com/Additional-Code/procura/internal/server/grpc"
	httpserver "github.com/Additional-Code/procura/internal/server/http"
	serviceorder "github.com/Additional-Code/procura/internal/service/order"
	serviceproject "github.com/Additional-Code/procura/internal/service/project"
	transporthttp "github.com/Additional-Code/procura/internal/transport/http"
	"github.com/Additional-Code/procura/internal/worker"
	workerorder "github.com/Additional-Code/procura/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryproject.Module,
	repositoryorder.Module,
	serviceproject.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring.
var Module = HTTP
