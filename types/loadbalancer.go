package types

import "time"

// LBKind distinguishes the two load balancer variants we audit.
type LBKind string

const (
	KindApplication LBKind = "application" // Layer 7
	KindNetwork     LBKind = "network"     // Layer 4
)

// LBScheme is the network exposure of a load balancer.
type LBScheme string

const (
	SchemeInternetFacing LBScheme = "internet-facing"
	SchemeInternal       LBScheme = "internal"
)

// LoadBalancer is an immutable snapshot of one ELBv2 resource,
// fetched once per audit pass.
type LoadBalancer struct {
	ARN               string    `json:"arn"`
	Name              string    `json:"name"`
	Kind              LBKind    `json:"kind"`
	Scheme            LBScheme  `json:"scheme"`
	VPCID             string    `json:"vpc_id,omitempty"`
	DNSName           string    `json:"dns_name,omitempty"`
	State             string    `json:"state,omitempty"`
	AvailabilityZones []string  `json:"availability_zones"`
	SecurityGroups    []string  `json:"security_groups,omitempty"` // Layer 7 only
	Tags              Tags      `json:"tags"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsApplication reports whether this is a Layer 7 load balancer.
func (lb LoadBalancer) IsApplication() bool {
	return lb.Kind == KindApplication
}

// IsNetwork reports whether this is a Layer 4 load balancer.
func (lb LoadBalancer) IsNetwork() bool {
	return lb.Kind == KindNetwork
}

// IsInternetFacing reports whether the load balancer is exposed publicly.
func (lb LoadBalancer) IsInternetFacing() bool {
	return lb.Scheme == SchemeInternetFacing
}

// IsProduction reports whether the resource is tagged as production.
func (lb LoadBalancer) IsProduction() bool {
	return lb.Tags.IsProduction()
}

// Age returns how long the load balancer has existed.
func (lb LoadBalancer) Age() time.Duration {
	if lb.CreatedAt.IsZero() {
		return 0
	}
	return time.Since(lb.CreatedAt)
}

// Listener is a protocol/port endpoint configured on a load balancer.
type Listener struct {
	ARN             string   `json:"arn"`
	LoadBalancerARN string   `json:"load_balancer_arn"`
	Protocol        string   `json:"protocol"` // HTTP, HTTPS, TCP, TLS
	Port            int32    `json:"port"`
	SSLPolicy       string   `json:"ssl_policy,omitempty"`
	Certificates    []string `json:"certificates,omitempty"` // certificate ARNs
}

// IsHTTPS reports whether the listener terminates HTTPS.
func (l Listener) IsHTTPS() bool {
	return l.Protocol == "HTTPS"
}

// IsHTTP reports whether the listener accepts plain HTTP.
func (l Listener) IsHTTP() bool {
	return l.Protocol == "HTTP"
}

// TargetGroup is a named backend set with its health-check configuration.
type TargetGroup struct {
	ARN                        string `json:"arn"`
	Name                       string `json:"name"`
	LoadBalancerARN            string `json:"load_balancer_arn,omitempty"`
	TargetType                 string `json:"target_type"` // instance, ip, lambda
	Protocol                   string `json:"protocol,omitempty"`
	Port                       int32  `json:"port,omitempty"`
	HealthCheckIntervalSeconds int32  `json:"health_check_interval_seconds"`
	HealthCheckTimeoutSeconds  int32  `json:"health_check_timeout_seconds"`
}

// TargetHealthSummary counts registered targets by health state for one
// target group. InstanceIDs is populated only for instance target types.
type TargetHealthSummary struct {
	Total       int      `json:"total"`
	Healthy     int      `json:"healthy"`
	Unhealthy   int      `json:"unhealthy"`
	InstanceIDs []string `json:"instance_ids,omitempty"`
}

// AllUnhealthy reports whether every registered target is unhealthy.
func (t TargetHealthSummary) AllUnhealthy() bool {
	return t.Total > 0 && t.Healthy == 0
}

// UnhealthyRatio returns the unhealthy fraction, 0 when no targets exist.
func (t TargetHealthSummary) UnhealthyRatio() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Unhealthy) / float64(t.Total)
}
