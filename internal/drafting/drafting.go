// Package drafting generates summaries and reply drafts via the AI gateway.
package drafting

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/model"
)

const systemPrompt = `You are the email drafting assistant, responsible for creating professional email replies.

Your job is to:
1. Summarize incoming emails clearly and concisely (2-3 sentences)
2. Generate appropriate reply drafts that match the context

Guidelines for drafts:
- Be professional but warm
- Be concise - get to the point quickly
- Never make specific commitments (dates, amounts, promises) without explicit approval
- Never share confidential information
- Match the sender's tone (formal vs casual)
- Include appropriate greetings and sign-offs
- If the email requires information you don't have, acknowledge and say you'll follow up

Draft modes:
- PROFESSIONAL: Formal business tone, structured response
- FRIENDLY: Warm but professional, more conversational
- BRIEF: Minimal acknowledgment, short and direct
- DETAILED: Comprehensive response with full context

Always err on the side of being helpful while maintaining professionalism.`

var modeInstructions = map[model.DraftMode]string{
	model.ModeProfessional: "Write a formal, professional response. Use proper business language.",
	model.ModeFriendly:     "Write a warm, friendly but still professional response. Be conversational.",
	model.ModeBrief:        "Write a very brief acknowledgment. Keep it under 3 sentences.",
	model.ModeDetailed:     "Write a comprehensive response addressing all points raised.",
}

// Generator produces summaries and drafts. SenderName signs every draft; the
// no-commitment rule lives in the prompt contract and is asserted in tests.
type Generator struct {
	ai         gateway.Completer
	senderName string
}

// NewGenerator builds the draft generator.
func NewGenerator(ai gateway.Completer, senderName string) *Generator {
	if senderName == "" {
		senderName = "David"
	}
	return &Generator{ai: ai, senderName: senderName}
}

// Summarize produces a 2-3 sentence summary. On AI failure it degrades to a
// body-preview excerpt so downstream formatting always has text to show.
func (g *Generator) Summarize(ctx context.Context, email *model.EmailRecord) string {
	body := email.BodyFull
	if body == "" {
		body = email.BodyPreview
	}
	prompt := fmt.Sprintf(`Summarize this email in 2-3 concise sentences:

From: %s <%s>
Subject: %s

%s

Focus on:
- What the sender wants/needs
- Any action items or deadlines
- Key information

Be direct and factual.`, email.SenderDisplay(), email.SenderEmail, email.Subject, body)

	summary, err := g.ai.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		logrus.Warnf("Summary generation failed: %v", err)
		preview := email.BodyPreview
		if len(preview) > 300 {
			preview = preview[:300]
		}
		return preview
	}
	return strings.TrimSpace(summary)
}

// GenerateDraft produces a reply draft in the given tone. Pass an empty mode
// to use the email's current draft mode. Never returns empty text: on AI
// failure a static acknowledgment is returned instead.
func (g *Generator) GenerateDraft(ctx context.Context, email *model.EmailRecord, summary string, mode model.DraftMode) string {
	if mode == "" {
		mode = email.DraftMode
	}
	instructions, ok := modeInstructions[mode]
	if !ok {
		instructions = modeInstructions[model.ModeProfessional]
	}

	body := email.BodyFull
	if body == "" {
		body = email.BodyPreview
	}
	prompt := fmt.Sprintf(`Generate a reply to this email:

From: %s <%s>
Subject: %s

Summary: %s

Full Content:
%s

---

Instructions:
%s

Important rules:
- Start with an appropriate greeting
- Do NOT make specific commitments about dates, times, or amounts
- If you need more information, say you'll follow up
- If there's a question you can't answer, acknowledge it
- End with an appropriate sign-off
- Use "%s" as the sender name

Only output the email reply, nothing else.`,
		email.SenderDisplay(), email.SenderEmail, email.Subject, summary, body, instructions, g.senderName)

	draft, err := g.ai.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		logrus.Errorf("Draft generation failed: %v", err)
		return g.fallbackDraft(email)
	}
	return strings.TrimSpace(draft)
}

// EditDraft rewrites the current draft per the user's free-text instructions.
// With no current draft it generates one from scratch. On AI failure the
// current draft is returned unchanged.
func (g *Generator) EditDraft(ctx context.Context, email *model.EmailRecord, editInstructions string) string {
	if email.CurrentDraft == "" {
		return g.GenerateDraft(ctx, email, email.Summary, "")
	}

	prompt := fmt.Sprintf(`Edit this email draft based on the instructions:

ORIGINAL EMAIL:
From: %s
Subject: %s

CURRENT DRAFT:
%s

EDIT INSTRUCTIONS:
%s

Only output the revised email draft, nothing else.`,
		email.SenderDisplay(), email.Subject, email.CurrentDraft, editInstructions)

	edited, err := g.ai.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		logrus.Errorf("Draft edit failed: %v", err)
		return email.CurrentDraft
	}
	return strings.TrimSpace(edited)
}

// RewriteDraft regenerates the draft. With an empty newMode the email cycles
// to the next tone preset. The email's DraftMode field is updated; the caller
// persists it.
func (g *Generator) RewriteDraft(ctx context.Context, email *model.EmailRecord, newMode model.DraftMode) string {
	if newMode == "" {
		newMode = model.NextDraftMode(email.DraftMode)
	}
	email.DraftMode = newMode
	return g.GenerateDraft(ctx, email, email.Summary, newMode)
}

func (g *Generator) fallbackDraft(email *model.EmailRecord) string {
	senderName := email.SenderName
	if senderName == "" {
		senderName = strings.Split(email.SenderEmail, "@")[0]
	}
	return fmt.Sprintf(`Hi %s,

Thank you for your email regarding "%s".

I've received your message and will review it shortly. I'll get back to you with a detailed response as soon as possible.

Best regards,
%s`, senderName, email.Subject, g.senderName)
}
