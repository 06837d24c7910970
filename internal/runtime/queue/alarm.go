package queue

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// AlarmName is the name of the dead-letter depth alarm for a queue.
func AlarmName(dlqName string) string {
	return "TooManyMessagesOn-" + dlqName
}

func dlqMetric(id, metricName, dlqName string, period int32) cwtypes.MetricDataQuery {
	return cwtypes.MetricDataQuery{
		Id: aws.String(id),
		MetricStat: &cwtypes.MetricStat{
			Metric: &cwtypes.Metric{
				Namespace:  aws.String("AWS/SQS"),
				MetricName: aws.String(metricName),
				Dimensions: []cwtypes.Dimension{{
					Name:  aws.String("QueueName"),
					Value: aws.String(dlqName),
				}},
			},
			Period: aws.Int32(period),
			Stat:   aws.String("Sum"),
			Unit:   cwtypes.StandardUnitCount,
		},
		ReturnData: aws.Bool(false),
	}
}

// dlqAlarmInput fires as soon as the dead-letter queue holds any visible or
// in-flight message.
func dlqAlarmInput(dlqName string, period int32, tags map[string]string) *cloudwatch.PutMetricAlarmInput {
	return &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String(AlarmName(dlqName)),
		AlarmDescription:   aws.String("Messages were dead-lettered from " + dlqName),
		ActionsEnabled:     aws.Bool(false),
		ComparisonOperator: cwtypes.ComparisonOperatorGreaterThanThreshold,
		Threshold:          aws.Float64(0),
		EvaluationPeriods:  aws.Int32(1),
		DatapointsToAlarm:  aws.Int32(1),
		TreatMissingData:   aws.String("ignore"),
		Metrics: []cwtypes.MetricDataQuery{
			dlqMetric("m1", "ApproximateNumberOfMessagesVisible", dlqName, period),
			dlqMetric("m2", "ApproximateNumberOfMessagesNotVisible", dlqName, period),
			{
				Id:         aws.String("e1"),
				Expression: aws.String("RATE(m1+m2)"),
				Label:      aws.String("Dead-lettered message rate"),
				ReturnData: aws.Bool(true),
			},
		},
		Tags: alarmTags(tags),
	}
}

func alarmTags(tags map[string]string) []cwtypes.Tag {
	out := make([]cwtypes.Tag, 0, len(tags))
	for _, key := range sortedKeys(tags) {
		out = append(out, cwtypes.Tag{Key: aws.String(key), Value: aws.String(tags[key])})
	}
	return out
}
