package domain

import (
	"testing"

	"mobiperf/backend/internal/extension"
)

func TestTask_Namespaces(t *testing.T) {
	task := &Task{ID: 7, Type: "ping"}
	task.Extensions.Set(extension.Param, "target", extension.Scalar("www.example.com"))
	task.Extensions.Set(extension.Param, "packet_size", extension.Scalar(int64(56)))
	task.Extensions.Set(extension.Context, "network", extension.Scalar("wifi"))

	if a, ok := task.Param("target"); !ok || a.Data != "www.example.com" {
		t.Errorf("Param(target) = %v, %v", a, ok)
	}
	if _, ok := task.Param("network"); ok {
		t.Error("context key must not be visible as a param")
	}
	if got := len(task.Params()); got != 2 {
		t.Errorf("len(Params()) = %d, want 2", got)
	}
	ctxs := task.Contexts()
	if len(ctxs) != 1 || ctxs["network"].Data != "wifi" {
		t.Errorf("Contexts() = %v", ctxs)
	}
	if _, ok := task.Context("target"); ok {
		t.Error("param key must not be visible as a context")
	}
}
