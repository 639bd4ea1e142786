package gpt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"truehabits/internal/models"
)

// Client is the natural-language interpretation boundary. Every method
// degrades to a documented sentinel on failure (empty habit, -1 quantity,
// the reference date) so the scoring core never sees an oracle outage.
type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4o,
	}
}

func (c *Client) WithModel(model string) *Client {
	c.model = model
	return c
}

func (c *Client) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: 0,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from GPT API")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// SplitActivities breaks a free-text report into individual activity
// phrases ("corrí 5 km y leí 20 páginas" -> two entries). Falls back to
// the whole text as a single activity.
func (c *Client) SplitActivities(ctx context.Context, text string) []string {
	prompt := fmt.Sprintf(
		"Divide el siguiente mensaje en actividades independientes, una por línea.\n"+
			"Si el mensaje describe una única actividad, devuélvelo tal cual.\n"+
			"No añadas numeración, viñetas ni explicaciones.\n\n"+
			"Mensaje: \"%s\"",
		text,
	)
	out, err := c.complete(ctx,
		"Eres un asistente que separa un mensaje en actividades, una por línea.",
		prompt, 300,
	)
	if err != nil || out == "" {
		return []string{text}
	}
	var activities []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			activities = append(activities, line)
		}
	}
	if len(activities) == 0 {
		return []string{text}
	}
	return activities
}

// MatchHabit picks the user's habit that the text refers to, or returns
// the empty string when none matches.
func (c *Client) MatchHabit(ctx context.Context, text string, habits []string) string {
	if len(habits) == 0 {
		return ""
	}
	prompt := fmt.Sprintf(
		"Tienes esta lista de hábitos del usuario:\n\n%s\n\n"+
			"Texto del usuario:\n\"%s\"\n\n"+
			"Elige SOLO UNO de esos hábitos, el que mejor coincida con lo que describe el mensaje.\n"+
			"Si ninguno coincide, responde exactamente la palabra 'desconocido'.\n"+
			"Sin explicaciones adicionales, solo el hábito o 'desconocido'.",
		strings.Join(habits, ", "), text,
	)
	out, err := c.complete(ctx,
		"Eres un asistente que elige un hábito existente de la lista, o 'desconocido'.",
		prompt, 50,
	)
	if err != nil {
		return ""
	}
	for _, h := range habits {
		if strings.EqualFold(out, h) {
			return h
		}
	}
	return ""
}

// ExtractDate pulls an occurrence date out of the text ("hace tres días"),
// falling back to the reference time when none is mentioned or the answer
// does not parse.
func (c *Client) ExtractDate(ctx context.Context, text string, now time.Time) time.Time {
	today := now.Format("2006-01-02")
	prompt := fmt.Sprintf(
		"Extrae una fecha del siguiente texto, en el formato exacto 'YYYY-MM-DD'.\n"+
			"Si se menciona un período relativo (por ejemplo, 'hace tres días'), calcula la fecha correspondiente.\n"+
			"Si no se menciona ninguna fecha, responde exactamente con '%s'.\n\n"+
			"Sabiendo que hoy es %s, analiza el siguiente texto:\n\"%s\"\n\n"+
			"Responde única y exclusivamente con la fecha.",
		today, today, text,
	)
	out, err := c.complete(ctx,
		"Eres un asistente que extrae una fecha en formato exacto 'YYYY-MM-DD'.",
		prompt, 30,
	)
	if err != nil {
		return now
	}
	parsed, err := time.ParseInLocation("2006-01-02", out, now.Location())
	if err != nil {
		return now
	}
	return parsed
}

// NormalizeQuantity extracts the quantity from the text converted into the
// habit's goal unit ("corrí 3 millas" with unit "km" -> 4.828). Returns -1
// when the units are incompatible or nothing usable was said.
func (c *Client) NormalizeQuantity(ctx context.Context, text, goal, unit string) float64 {
	prompt := fmt.Sprintf(
		"Analiza el texto para:\n"+
			"1. Identificar la cantidad.\n"+
			"2. Convertirla a la unidad objetivo.\n"+
			"3. Si la unidad objetivo es 'veces' o 'vez' y el texto indica la acción sin número, asume 1.\n"+
			"4. Devuelve únicamente el número (entero o decimal) o -1 si las unidades no son compatibles.\n\n"+
			"Ejemplos:\n"+
			"- Objetivo: \"Correr 5 kilómetros al día\" (unidad: \"km\"). Texto: \"Corrí 200 metros\" => 0.2\n"+
			"- Objetivo: \"Correr 3 veces a la semana\" (unidad: \"veces\"). Texto: \"Hoy corrí media hora\" => 1\n"+
			"- Objetivo: \"Beber 2 litros\" (unidad: \"litros\"). Texto: \"Hoy bebí 2 tazas\" => -1\n\n"+
			"Analiza el texto: \"%s\".\n"+
			"Objetivo: \"%s\" (unidad objetivo: \"%s\").",
		text, goal, unit,
	)
	out, err := c.complete(ctx,
		"Eres un asistente que devuelve solo un número (entero o decimal) o -1.",
		prompt, 30,
	)
	if err != nil {
		return -1
	}
	quantity, err := strconv.ParseFloat(strings.ReplaceAll(out, ",", "."), 64)
	if err != nil {
		return -1
	}
	return quantity
}

// ParseGoal turns a free-text goal ("correr 5 km cada día") into a unit of
// measure and a numeric quantity, taking the declared frequency into
// account. Returns ("", 0) when nothing numeric can be extracted; the
// scoring engine treats a zero goal as "no numeric goal".
func (c *Client) ParseGoal(ctx context.Context, goalText string, frequency models.Frequency) (string, float64) {
	prompt := fmt.Sprintf(
		"A partir del siguiente texto sobre un objetivo personal, extrae la cantidad total y la unidad asociada.\n"+
			"Ten en cuenta que el objetivo tiene una frecuencia: \"%s\".\n\n"+
			"Reglas:\n"+
			"1. Si el texto incluye unidades explícitas (p. ej. \"km\", \"litros\", \"páginas\") y también un número de días o veces, multiplica la cantidad base por ese número.\n"+
			"2. Si el texto incluye unidades explícitas pero no menciona repeticiones, toma la cantidad tal cual.\n"+
			"3. Si no hay unidad explícita, usa \"veces\".\n\n"+
			"Responde siempre con un JSON EXACTO con las claves \"unidad\" y \"cantidad\".\n\n"+
			"Texto: \"%s\"",
		frequency, goalText,
	)
	out, err := c.complete(ctx,
		"Eres un asistente que devuelve un JSON con las claves 'unidad' y 'cantidad'.",
		prompt, 100,
	)
	if err != nil {
		return "", 0
	}
	var parsed struct {
		Unit     string  `json:"unidad"`
		Quantity float64 `json:"cantidad"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return "", 0
	}
	if parsed.Quantity < 0 {
		parsed.Quantity = 0
	}
	return parsed.Unit, parsed.Quantity
}

// ProgressMessage writes a short motivational answer to a progress
// question, given the value the user actually achieved and the habit's
// goal. Empty string when the oracle is unavailable; callers fall back to
// a plain numeric reply.
func (c *Client) ProgressMessage(ctx context.Context, question string, habit *models.Habit, achieved float64) string {
	if habit == nil || strings.TrimSpace(habit.Goal) == "" {
		return ""
	}
	prompt := fmt.Sprintf(
		"Redacta un mensaje breve y positivo en español, de ánimo o felicitación, "+
			"basado en la pregunta del usuario, en su desempeño real y en su objetivo.\n"+
			"El mensaje debe indicar cuánto ha realizado el usuario y cuál es su objetivo.\n"+
			"Comprueba si se ha cumplido el objetivo: felicita si está claro que se cumplió, "+
			"anima si no; si no está claro, no afirmes que lo haya cumplido.\n"+
			"No incluyas pasos de tu razonamiento, solo el texto para el usuario.\n\n"+
			"Pregunta: %s\n"+
			"Hábito: %s\n"+
			"Valor logrado por el usuario: %.2f %s\n"+
			"Objetivo del hábito: %s\n"+
			"Cantidad objetivo: %.2f %s\n"+
			"Frecuencia objetivo: %s",
		question, habit.Name, achieved, habit.GoalUnit,
		habit.Goal, habit.GoalQuantity, habit.GoalUnit, habit.Frequency,
	)
	out, err := c.complete(ctx,
		"Eres un asistente que redacta mensajes motivacionales breves y positivos "+
			"en función de un objetivo y el progreso del usuario.",
		prompt, 150,
	)
	if err != nil {
		return ""
	}
	return out
}
