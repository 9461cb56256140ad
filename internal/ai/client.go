package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/apetersen/remindbot/internal/models"
)

// ErrExtraction marks model output that could not be turned into a complete
// reminder spec. Callers treat it as "could not understand", never as a
// partial reminder.
var ErrExtraction = errors.New("extraction failed")

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

const extractionPromptTemplate = `Extract the task, frequency, start date, end date and time from the user's message.
Today's date is %s and the current time is %s.
If not mentioned, set time to 09:00, start date to today, end date to 9999-12-31, and frequency to once.
Resolve relative dates like "today", "tomorrow", "next monday", "in 2 weeks" against today's date.
Respond with JSON using exactly these keys: task, frequency, start_date, end_date, time.
Dates use YYYY-MM-DD, time uses 24-hour HH:MM, frequency is one of once, daily, weekly, monthly, yearly.`

// rawSpec is the wire shape the model is asked to produce.
type rawSpec struct {
	Task      string `json:"task"`
	Frequency string `json:"frequency"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Time      string `json:"time"`
}

var specSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task": {
			"type": "string",
			"description": "What the user wants to be reminded of, without the scheduling words"
		},
		"frequency": {
			"type": "string",
			"enum": ["once", "daily", "weekly", "monthly", "yearly"],
			"description": "How often the reminder repeats"
		},
		"start_date": {
			"type": "string",
			"description": "First day the reminder is valid, YYYY-MM-DD"
		},
		"end_date": {
			"type": "string",
			"description": "Last day the reminder is valid, YYYY-MM-DD, 9999-12-31 when open-ended"
		},
		"time": {
			"type": "string",
			"description": "Wall-clock time of day, 24-hour HH:MM"
		}
	},
	"required": ["task", "frequency", "start_date", "end_date", "time"],
	"additionalProperties": false
}`)

// Extract turns free-form text into a reminder spec relative to now. Any
// shape violation in the model output is reported as ErrExtraction.
func (c *Client) Extract(ctx context.Context, text string, now time.Time) (*models.ReminderSpec, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(extractionPromptTemplate,
					now.Format(models.DateLayout), now.Format(models.TimeLayout)),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "reminder",
				Schema: specSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from model", ErrExtraction)
	}

	var raw rawSpec
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return specFromRaw(raw)
}

func specFromRaw(raw rawSpec) (*models.ReminderSpec, error) {
	freq, err := models.ParseFrequency(raw.Frequency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	start, err := time.Parse(models.DateLayout, raw.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start date %q", ErrExtraction, raw.StartDate)
	}
	end, err := time.Parse(models.DateLayout, raw.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad end date %q", ErrExtraction, raw.EndDate)
	}
	tod, err := models.ParseTimeOfDay(raw.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	spec := &models.ReminderSpec{
		Task:      raw.Task,
		Frequency: freq,
		StartDate: start,
		EndDate:   end,
		TimeOfDay: tod,
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return spec, nil
}

// RenderReminder asks the model for a friendly one-sentence delivery message.
// Callers must fall back to a template when it fails.
func (c *Client) RenderReminder(ctx context.Context, r *models.Reminder, occurrence time.Time) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "We are delivering a reminder to the user. Write a friendly, " +
					"human one-sentence reminder message with no extra text or formatting.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Task: %s, Time: %s, Date: %s",
					r.Task, r.TimeOfDay, occurrence.Format(models.DateLayout)),
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return resp.Choices[0].Message.Content, nil
}
