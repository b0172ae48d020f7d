package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Notice tells downstream consumers that an export is ready.
type Notice struct {
	RunID      string    `json:"runId"`
	ReportID   string    `json:"reportId"`
	Location   string    `json:"location"`
	RowCount   int       `json:"rowCount"`
	ExportedAt time.Time `json:"exportedAt"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

type messageSender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSNotifier struct {
	client   messageSender
	queueURL string
}

func NewSQSNotifier(client *sqs.Client, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

func (n *SQSNotifier) Notify(ctx context.Context, notice Notice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send export notice: %w", err)
	}
	return nil
}
