package discovery

import (
	"fmt"
	"os"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type agent interface {
	ServiceRegister(reg *consulapi.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// Registrar announces this node to a Consul agent with an HTTP check on
// /health.
type Registrar struct {
	agent     agent
	name      string
	host      string
	serviceID string
	logger    *zap.Logger
}

// NewRegistrar returns nil when addr is empty.
func NewRegistrar(addr, name, host, nodeID string, logger *zap.Logger) (*Registrar, error) {
	if addr == "" {
		return nil, nil
	}
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return newRegistrar(client.Agent(), name, host, nodeID, logger), nil
}

func newRegistrar(a agent, name, host, nodeID string, logger *zap.Logger) *Registrar {
	if host == "" {
		host, _ = os.Hostname()
	}
	return &Registrar{
		agent:     a,
		name:      name,
		host:      host,
		serviceID: fmt.Sprintf("%s-%s", name, nodeID),
		logger:    logger,
	}
}

func (r *Registrar) ServiceID() string { return r.serviceID }

func (r *Registrar) Register(port int) error {
	reg := &consulapi.AgentServiceRegistration{
		ID:      r.serviceID,
		Name:    r.name,
		Address: r.host,
		Port:    port,
		Tags:    []string{"realtime", "websocket"},
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", r.host, port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := r.agent.ServiceRegister(reg); err != nil {
		return fmt.Errorf("consul register: %w", err)
	}
	r.logger.Info("registered with consul", zap.String("service_id", r.serviceID), zap.String("host", r.host), zap.Int("port", port))
	return nil
}

func (r *Registrar) Deregister() {
	if err := r.agent.ServiceDeregister(r.serviceID); err != nil {
		r.logger.Warn("consul deregister failed", zap.String("service_id", r.serviceID), zap.Error(err))
		return
	}
	r.logger.Info("deregistered from consul", zap.String("service_id", r.serviceID))
}
