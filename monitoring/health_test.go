package monitoring

import "testing"

func TestCheckAggregatesWorstComponentStatus(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck("websocket", func() ComponentHealth {
		return ComponentHealth{Status: StatusHealthy}
	})
	hc.RegisterCheck("scout", func() ComponentHealth {
		return ComponentHealth{Status: StatusDegraded}
	})

	result := hc.Check()
	if result.Status != StatusDegraded {
		t.Errorf("Check().Status = %v, want %v", result.Status, StatusDegraded)
	}
	if len(result.Components) != 2 {
		t.Errorf("Check() returned %d components, want 2", len(result.Components))
	}
}

func TestCheckUnhealthyComponentDominates(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck("a", func() ComponentHealth { return ComponentHealth{Status: StatusDegraded} })
	hc.RegisterCheck("b", func() ComponentHealth { return ComponentHealth{Status: StatusUnhealthy} })

	if got := hc.Check().Status; got != StatusUnhealthy {
		t.Errorf("Check().Status = %v, want %v", got, StatusUnhealthy)
	}
}

func TestCheckReadinessOnlyFailsOnCriticalComponents(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck("websocket", func() ComponentHealth { return ComponentHealth{Status: StatusHealthy} })
	hc.RegisterCheck("redis", func() ComponentHealth { return ComponentHealth{Status: StatusUnhealthy} })

	if r := hc.CheckReadiness(); !r.Ready {
		t.Errorf("CheckReadiness().Ready = false, want true (redis is not a critical component)")
	}
}

func TestCheckReadinessFailsOnCriticalComponent(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck("websocket", func() ComponentHealth { return ComponentHealth{Status: StatusUnhealthy} })

	if r := hc.CheckReadiness(); r.Ready {
		t.Errorf("CheckReadiness().Ready = true, want false (websocket is critical)")
	}
}
