package discovery

import (
	"errors"
	"testing"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type fakeAgent struct {
	registered   *consulapi.AgentServiceRegistration
	deregistered string
	err          error
}

func (f *fakeAgent) ServiceRegister(reg *consulapi.AgentServiceRegistration) error {
	if f.err != nil {
		return f.err
	}
	f.registered = reg
	return nil
}

func (f *fakeAgent) ServiceDeregister(id string) error {
	f.deregistered = id
	return f.err
}

func TestRegisterWithHealthCheck(t *testing.T) {
	a := &fakeAgent{}
	r := newRegistrar(a, "realtime-service", "10.0.0.5", "node-1", zap.NewNop())
	if err := r.Register(8085); err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.registered.ID != "realtime-service-node-1" {
		t.Errorf("unexpected service id %q", a.registered.ID)
	}
	if a.registered.Check == nil || a.registered.Check.HTTP != "http://10.0.0.5:8085/health" {
		t.Errorf("unexpected check %+v", a.registered.Check)
	}

	r.Deregister()
	if a.deregistered != r.ServiceID() {
		t.Errorf("expected deregister of %s, got %q", r.ServiceID(), a.deregistered)
	}
}

func TestRegisterError(t *testing.T) {
	a := &fakeAgent{err: errors.New("agent down")}
	r := newRegistrar(a, "realtime-service", "h", "n", zap.NewNop())
	if err := r.Register(1); err == nil {
		t.Errorf("expected error")
	}
}

func TestNewRegistrarDisabled(t *testing.T) {
	r, err := NewRegistrar("", "svc", "", "n", zap.NewNop())
	if err != nil || r != nil {
		t.Errorf("expected nil registrar, got %v %v", r, err)
	}
}
