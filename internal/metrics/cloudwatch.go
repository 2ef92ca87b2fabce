package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

// Client wraps CloudWatch client for custom metrics
type Client struct {
	client      *cloudwatch.Client
	enabled     bool
	namespace   string
	environment string
}

// NewClient creates a new CloudWatch metrics client. A disabled client is
// returned when enabled is false or AWS config cannot be loaded.
func NewClient(ctx context.Context, enabled bool, namespace, environment string) *Client {
	if !enabled {
		log.Printf("📊 CloudWatch Metrics: DISABLED (environment: %s)", environment)
		return &Client{enabled: false, namespace: namespace, environment: environment}
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false, namespace: namespace, environment: environment}
	}

	log.Printf("📊 CloudWatch Metrics: ✅ ENABLED (namespace: %s)", namespace)
	return &Client{
		client:      cloudwatch.NewFromConfig(cfg),
		enabled:     true,
		namespace:   namespace,
		environment: environment,
	}
}

// Enabled reports whether metrics are actually sent
func (m *Client) Enabled() bool {
	return m.enabled
}

// RecordAPIRequest records an API request metric
func (m *Client) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		metricName := "APIRequests"
		if statusCode >= httpStatusServerError {
			metricName = "APIErrors"
		}
		dimensions := m.dimensions("Endpoint", endpoint)

		m.send(metricName, 1, types.StandardUnitCount, dimensions)
		m.send("APILatency", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
	}()
}

// RecordRender records one render call against the diffusion backend
func (m *Client) RecordRender(role, outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		dimensions := append(m.dimensions("Role", role), types.Dimension{
			Name:  aws.String("Outcome"),
			Value: aws.String(outcome),
		})
		m.send("Renders", 1, types.StandardUnitCount, dimensions)
		m.send("RenderDuration", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
	}()
}

// RecordBatch records a generated batch and its padded cell count
func (m *Client) RecordBatch(padded int) {
	if !m.enabled {
		return
	}

	go func() {
		dimensions := m.dimensions("", "")
		m.send("Batches", 1, types.StandardUnitCount, dimensions)
		m.send("PaddedCells", float64(padded), types.StandardUnitCount, dimensions)
	}()
}

func (m *Client) dimensions(name, value string) []types.Dimension {
	dims := []types.Dimension{{
		Name:  aws.String("Environment"),
		Value: aws.String(m.environment),
	}}
	if name != "" {
		dims = append(dims, types.Dimension{Name: aws.String(name), Value: aws.String(value)})
	}
	return dims
}

func (m *Client) send(metricName string, value float64, unit types.StandardUnit, dimensions []types.Dimension) {
	if err := m.putMetric(metricName, value, unit, dimensions); err != nil {
		log.Printf("Failed to record %s metric: %v", metricName, err)
	}
}

// putMetric sends a metric to CloudWatch
func (m *Client) putMetric(
	metricName string,
	value float64,
	unit types.StandardUnit,
	dimensions []types.Dimension,
) error {
	if !m.enabled || m.client == nil {
		return nil
	}

	// Create context with timeout for CloudWatch call
	timeout := time.Duration(cloudwatchTimeoutSeconds) * time.Second
	cwCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := m.client.PutMetricData(cwCtx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions,
			},
		},
	})

	return err
}
