// Package notify composes the personalized status message sent to a
// client when one of their tasks is delivered.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PedroDircksen/Lighthouse/internal/core"
)

// fallbackText is used whenever generation fails. Content degradation
// must never abort the task being processed.
const fallbackText = "Oi! Passando pra te contar que uma entrega do seu projeto acabou de ser concluída. Qualquer dúvida é só chamar!"

// TaskContext is the material the prompt is built from.
type TaskContext struct {
	TaskName    string
	EpicName    string
	Description string
}

type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	PortalURL string
}

// Generator produces message text via a generative-text API, degrading to
// a fixed fallback on any failure.
type Generator struct {
	baseURL   string
	apiKey    string
	model     string
	portalURL string
	httpc     *http.Client
}

func New(cfg Config) *Generator {
	return &Generator{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		portalURL: cfg.PortalURL,
		httpc:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Compose returns the message for one delivery. The client's access token
// is appended as a deep link whether generation succeeded or not.
func (g *Generator) Compose(ctx context.Context, client core.Client, tc TaskContext) string {
	text, err := g.generate(ctx, tc)
	if err != nil {
		log.Printf("notify: generation failed, using fallback: %v", err)
		text = fallbackText
	}
	if g.portalURL != "" && client.Token != "" {
		text += fmt.Sprintf("\n\nAcesse o projeto: %s/auth?token=%s", g.portalURL, client.Token)
	}
	return text
}

func (g *Generator) prompt(tc TaskContext) string {
	desc := tc.Description
	if strings.TrimSpace(desc) == "" {
		desc = "Nenhuma descrição fornecida."
	}
	return fmt.Sprintf(`Haja como um assistente de mensagens, você deve gerar uma mensagem para o cliente.
Gere uma mensagem curta e personalizada para enviar a um cliente.
A mensagem deve atualizar sobre o progresso do projeto, explicando de forma leve o que foi entregue e por que isso é importante.

Instruções:

Use um tom informal, mas profissional (ex: "Oi! Passando pra te contar...")

Feche com uma frase leve que transmita continuidade.

Não crie múltiplas opções, listas ou enumerações (ex.: "Opção 1", "Opção 2").

Escreva apenas uma única mensagem final, sem títulos ou marcadores.

Nome da tarefa: %s
Projeto do cliente: %s
Descrição da tarefa: %s`, tc.TaskName, tc.EpicName, desc)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (g *Generator) generate(ctx context.Context, tc TaskContext) (string, error) {
	if g.apiKey == "" || g.model == "" {
		return "", fmt.Errorf("generator not configured")
	}
	body, _ := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: g.prompt(tc)}}}},
	})
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("blank completion")
	}
	return text, nil
}
