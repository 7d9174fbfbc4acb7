package httpapi

import (
	"net/http"

	"github.com/daease/medscribe/internal/repository"
	"github.com/daease/medscribe/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Hub, error) {
		return NewHub(), nil
	})
	do.Provide(injector, func(i do.Injector) (http.Handler, error) {
		manager := do.MustInvoke[*session.Manager](i)
		repo := do.MustInvoke[repository.Repository](i)
		hub := do.MustInvoke[*Hub](i)
		manager.SetPublisher(hub)
		return NewRouter(NewHandler(manager, repo, hub)), nil
	})
}
