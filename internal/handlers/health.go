package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/IBM/sarama"
)

// Статусы зависимостей в ответе /health.
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// Dependency описывает внешнюю зависимость, которую проверяют health-эндпоинты.
// Check == nil означает, что зависимость отключена конфигурацией.
type Dependency struct {
	Name  string
	Title string
	Check func(ctx context.Context) error
}

// DatabaseDependency проверка PostgreSQL
func DatabaseDependency(db DBHealth) Dependency {
	return Dependency{
		Name:  "database",
		Title: "Database",
		Check: func(context.Context) error { return db.Health() },
	}
}

// RedisDependency проверка Redis
func RedisDependency(client RedisHealth) Dependency {
	return Dependency{Name: "redis", Title: "Redis", Check: client.Health}
}

// KafkaDependency проверка брокеров Kafka; check == nil, если Kafka выключена.
func KafkaDependency(brokers []string, check func([]string) error) Dependency {
	dep := Dependency{Name: "kafka", Title: "Kafka"}
	if check != nil {
		dep.Check = func(context.Context) error { return check(brokers) }
	}
	return dep
}

// HealthHandler представляет обработчик для проверки здоровья системы
type HealthHandler struct {
	deps []Dependency
}

// NewHealthHandler создает новый обработчик здоровья
func NewHealthHandler(deps ...Dependency) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HealthResponse представляет ответ проверки здоровья
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
}

var startTime = time.Now()

// Health проверяет состояние всех компонентов системы
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.deps))
	overallStatus := statusHealthy

	for _, dep := range h.deps {
		if dep.Check == nil {
			services[dep.Name] = statusDisabled
			continue
		}
		if err := dep.Check(ctx); err != nil {
			services[dep.Name] = statusUnhealthy + ": " + err.Error()
			overallStatus = statusUnhealthy
			continue
		}
		services[dep.Name] = statusHealthy
	}

	response := HealthResponse{
		Status:   overallStatus,
		Services: services,
		Version:  "1.0.0",
		Uptime:   time.Since(startTime).String(),
	}

	statusCode := http.StatusOK
	if overallStatus == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, response)
}

// Readiness проверяет готовность приложения к обработке запросов.
// Отключённые зависимости готовность не блокируют.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, dep := range h.deps {
		if dep.Check == nil {
			continue
		}
		if err := dep.Check(ctx); err != nil {
			writeErrorResponse(w, http.StatusServiceUnavailable, dep.Title+" not ready")
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Liveness проверяет, что приложение живо
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}

// CheckKafkaBrokers проверяет доступность Kafka брокеров
func CheckKafkaBrokers(brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 3 * time.Second
	cfg.Net.ReadTimeout = 5 * time.Second
	cfg.Net.WriteTimeout = 5 * time.Second
	cfg.Metadata.Retry.Max = 1
	cfg.Metadata.Retry.Backoff = 500 * time.Millisecond

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return nil
}
