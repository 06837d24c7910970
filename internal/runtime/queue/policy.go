package queue

import (
	"github.com/drblury/statusrelay/internal/runtime/jsoncodec"
)

// Service principals allowed to deliver into relay queues.
const (
	PrincipalSQS         = "sqs.amazonaws.com"
	PrincipalSNS         = "sns.amazonaws.com"
	PrincipalEventBridge = "events.amazonaws.com"
)

const policyVersion = "2012-10-17"

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string                       `json:"Sid"`
	Effect    string                       `json:"Effect"`
	Principal map[string]string            `json:"Principal"`
	Action    string                       `json:"Action"`
	Resource  string                       `json:"Resource"`
	Condition map[string]map[string]string `json:"Condition"`
}

// SendMessagePolicy renders a queue policy letting principal send messages to
// queueARN when the request originates from sourceARN.
func SendMessagePolicy(sid, principal, queueARN, sourceARN string) (string, error) {
	doc := policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{{
			Sid:       sid,
			Effect:    "Allow",
			Principal: map[string]string{"Service": principal},
			Action:    "sqs:SendMessage",
			Resource:  queueARN,
			Condition: map[string]map[string]string{
				"ArnEquals": {"aws:SourceArn": sourceARN},
			},
		}},
	}
	data, err := jsoncodec.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type redrivePolicy struct {
	DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	MaxReceiveCount     int32  `json:"maxReceiveCount"`
}

func renderRedrivePolicy(dlqARN string, maxReceiveCount int32) (string, error) {
	data, err := jsoncodec.Marshal(redrivePolicy{DeadLetterTargetArn: dlqARN, MaxReceiveCount: maxReceiveCount})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
