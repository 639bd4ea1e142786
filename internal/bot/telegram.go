package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"truehabits/internal/db"
	"truehabits/internal/gpt"
	"truehabits/internal/models"
	"truehabits/internal/payment"
	"truehabits/internal/report"
	"truehabits/pkg/logger"
)

const (
	StateName           = "name"
	StateAge            = "age"
	StateSex            = "sex"
	StateHabitName      = "habit_name"
	StateHabitCategory  = "habit_category"
	StateHabitFrequency = "habit_frequency"
	StateHabitGoal      = "habit_goal"
	StateHabitMore      = "habit_more"
	StateLogging        = "logging"
)

var categoryButtons = []string{
	string(models.CategoryWalk),
	string(models.CategorySport),
	string(models.CategoryLifestyle),
	string(models.CategoryTime),
	string(models.CategoryDiet),
	string(models.CategoryQuit),
}

type TelegramBot struct {
	bot          *tgbotapi.BotAPI
	db           *db.PostgresDB
	reporter     *report.Reporter
	stripeClient *payment.StripeClient
	gptClient    *gpt.Client
	logger       *logger.Logger
	userStates   map[int64]*models.UserState
	stateMutex   sync.RWMutex
}

func NewTelegramBot(token string, db *db.PostgresDB, reporter *report.Reporter, stripeClient *payment.StripeClient, gptClient *gpt.Client, logger *logger.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Infow("authorized on Telegram", "username", bot.Self.UserName)

	return &TelegramBot{
		bot:          bot,
		db:           db,
		reporter:     reporter,
		stripeClient: stripeClient,
		gptClient:    gptClient,
		logger:       logger,
		userStates:   make(map[int64]*models.UserState),
	}, nil
}

// Start begins receiving updates from Telegram via polling.
func (t *TelegramBot) Start(ctx context.Context) error {
	_, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{
		DropPendingUpdates: true,
	})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := t.bot.GetUpdatesChan(updateConfig)

	t.logger.Info("started receiving Telegram updates")

	go t.handleUpdates(ctx, updates)

	return nil
}

func (t *TelegramBot) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		go func(update tgbotapi.Update) {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Errorw("recovered from panic while processing update", "error", r)
				}
			}()

			if update.Message != nil {
				if update.Message.IsCommand() {
					t.handleCommand(ctx, update.Message)
				} else {
					t.handleMessage(ctx, update.Message)
				}
			} else if update.CallbackQuery != nil {
				t.handleCallbackQuery(ctx, update.CallbackQuery)
			}
		}(update)
	}
}

// Stop gracefully shuts down the bot.
func (t *TelegramBot) Stop(ctx context.Context) error {
	t.bot.StopReceivingUpdates()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

func (t *TelegramBot) send(msg tgbotapi.Chattable) {
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Errorw("failed to send message", "error", err)
	}
}

func (t *TelegramBot) reply(chatID int64, text string) {
	t.send(tgbotapi.NewMessage(chatID, text))
}

func (t *TelegramBot) getState(userID int64) (*models.UserState, bool) {
	t.stateMutex.RLock()
	defer t.stateMutex.RUnlock()
	state, ok := t.userStates[userID]
	return state, ok
}

func (t *TelegramBot) setState(userID int64, state *models.UserState) {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	t.userStates[userID] = state
}

func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()
	chatID := message.Chat.ID
	userID := message.From.ID

	t.logger.Infow("handling command", "command", command, "user_id", userID)

	switch command {
	case "start":
		if message.CommandArguments() == "premium_success" {
			t.reply(chatID, "¡Gracias! Estamos confirmando tu pago. Te avisaré en cuanto la comparación con la comunidad esté activada.")
			return
		}
		if message.CommandArguments() == "premium_cancel" {
			t.reply(chatID, "El pago fue cancelado. Puedes intentarlo de nuevo con /premium cuando quieras.")
			return
		}

		registered, err := t.db.IsRegistered(ctx, userID)
		if err != nil {
			t.logger.Errorw("failed to check registration", "error", err, "user_id", userID)
			t.reply(chatID, "Lo siento, ha ocurrido un error. Inténtalo de nuevo más tarde.")
			return
		}
		if registered {
			t.setState(userID, &models.UserState{TelegramID: userID, CurrentState: StateLogging})
			t.reply(chatID, "¡Hola de nuevo! Ya estás registrado. Cuéntame qué has hecho hoy o usa /informe para ver tu semana.")
			return
		}

		t.setState(userID, &models.UserState{TelegramID: userID, CurrentState: StateName})
		t.reply(chatID, "👋 ¡Hola! Soy TrueHabits y te ayudaré a construir tus hábitos. Para empezar, ¿cómo te llamas?")

	case "help":
		t.reply(chatID, "Cuéntame en texto libre lo que has hecho (\"hoy corrí 5 km\") y lo anotaré en tu hábito.\n"+
			"Si me haces una pregunta (\"¿cuánto he leído esta semana?\") te contaré tu progreso.\n\n"+
			"Comandos:\n"+
			"/informe - informe semanal completo\n"+
			"/puntos - puntos de esta semana\n"+
			"/total - puntos históricos\n"+
			"/habitos - tus hábitos y objetivos\n"+
			"/premium - comparación con la comunidad\n"+
			"/reiniciar - borrar tu historial de actividades\n"+
			"/baja - eliminar tu cuenta\n"+
			"/start - registro")

	case "puntos":
		points, err := t.reporter.WeeklyPoints(ctx, userID)
		if err != nil {
			t.logger.Errorw("failed to compute weekly points", "error", err, "user_id", userID)
			t.reply(chatID, "No he podido calcular tus puntos ahora mismo. Inténtalo de nuevo más tarde.")
			return
		}
		t.reply(chatID, fmt.Sprintf("🏅 Esta semana llevas %.1f puntos.", points))

	case "total":
		points, err := t.reporter.AllTimePoints(ctx, userID)
		if err != nil {
			t.logger.Errorw("failed to compute all-time points", "error", err, "user_id", userID)
			t.reply(chatID, "No he podido calcular tu total ahora mismo. Inténtalo de nuevo más tarde.")
			return
		}
		t.reply(chatID, fmt.Sprintf("🏆 Desde que empezaste has acumulado %.1f puntos.", points))

	case "informe":
		t.sendWeeklyReport(ctx, chatID, userID)

	case "habitos":
		habits, err := t.db.GetHabits(ctx, userID)
		if err != nil {
			t.logger.Errorw("failed to load habits", "error", err, "user_id", userID)
			t.reply(chatID, "No he podido cargar tus hábitos. Inténtalo de nuevo más tarde.")
			return
		}
		if len(habits) == 0 {
			t.reply(chatID, "Aún no tienes hábitos. Usa /start para registrarlos.")
			return
		}
		var b strings.Builder
		b.WriteString("Tus hábitos:\n")
		for _, h := range habits {
			fmt.Fprintf(&b, "\n%s %s (%s, %s)\n  Objetivo: %s", h.Icon, h.Name, h.Category, h.Frequency, h.Goal)
		}
		t.reply(chatID, b.String())

	case "premium":
		t.handlePremiumCommand(ctx, chatID, userID)

	case "reiniciar":
		if err := t.db.ReplaceActions(ctx, userID, nil); err != nil {
			t.logger.Errorw("failed to clear actions", "error", err, "user_id", userID)
			t.reply(chatID, "No he podido borrar tu historial. Inténtalo de nuevo más tarde.")
			return
		}
		t.reply(chatID, "Historial de actividades borrado. Tus hábitos siguen ahí: empezamos de cero. 💪")

	case "baja":
		if err := t.db.DeleteUser(ctx, userID); err != nil {
			t.logger.Errorw("failed to delete user", "error", err, "user_id", userID)
			t.reply(chatID, "No he podido darte de baja. Inténtalo de nuevo más tarde.")
			return
		}
		t.stateMutex.Lock()
		delete(t.userStates, userID)
		t.stateMutex.Unlock()
		t.reply(chatID, "Cuenta eliminada junto con tus hábitos y tu historial. Si vuelves, aquí estaré: /start.")

	default:
		t.reply(chatID, "No conozco ese comando. Usa /help para ver lo que puedo hacer.")
	}
}

func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID
	text := strings.TrimSpace(message.Text)

	state, exists := t.getState(userID)
	if !exists {
		registered, err := t.db.IsRegistered(ctx, userID)
		if err != nil {
			t.logger.Errorw("failed to check registration", "error", err, "user_id", userID)
			t.reply(chatID, "Lo siento, ha ocurrido un error. Inténtalo de nuevo más tarde.")
			return
		}
		if !registered {
			t.reply(chatID, "Por favor, usa /start para registrarte antes de anotar actividades.")
			return
		}
		state = &models.UserState{TelegramID: userID, CurrentState: StateLogging}
		t.setState(userID, state)
	}

	switch state.CurrentState {
	case StateName:
		if text == "" {
			t.reply(chatID, "Dime tu nombre, por favor.")
			return
		}
		state.Name = text
		state.CurrentState = StateAge
		t.reply(chatID, fmt.Sprintf("Encantado, %s. ¿Cuántos años tienes?", state.Name))

	case StateAge:
		age, err := strconv.Atoi(text)
		if err != nil || age < 5 || age > 120 {
			t.reply(chatID, "Introduce una edad válida en años (por ejemplo, 30).")
			return
		}
		state.Age = age
		state.CurrentState = StateSex

		msg := tgbotapi.NewMessage(chatID, "¿Cuál es tu sexo?")
		msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("Masculino"),
				tgbotapi.NewKeyboardButton("Femenino"),
				tgbotapi.NewKeyboardButton("Otro"),
			),
		)
		t.send(msg)

	case StateSex:
		if text != "Masculino" && text != "Femenino" && text != "Otro" {
			t.reply(chatID, "Elige una de las opciones del teclado, por favor.")
			return
		}
		state.Sex = strings.ToLower(text)

		user := &models.User{
			ID:     userID,
			ChatID: chatID,
			Name:   state.Name,
			Age:    state.Age,
			Sex:    state.Sex,
		}
		if err := t.db.SaveUser(ctx, user); err != nil {
			t.logger.Errorw("failed to save user", "error", err, "user_id", userID)
			t.reply(chatID, "Lo siento, no he podido guardar tus datos. Inténtalo de nuevo más tarde.")
			return
		}

		state.CurrentState = StateHabitName
		msg := tgbotapi.NewMessage(chatID, "¡Perfecto! Ahora vamos con tus hábitos. ¿Cómo se llama el primero? (por ejemplo: correr, leer, fumar)")
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		t.send(msg)

	case StateHabitName:
		if text == "" {
			t.reply(chatID, "Dime el nombre del hábito, por favor.")
			return
		}
		state.Draft = models.Habit{UserID: userID, Name: text}

		msg := tgbotapi.NewMessage(chatID, "¿En qué categoría encaja?")
		msg.ReplyMarkup = categoryKeyboard()
		t.send(msg)
		state.CurrentState = StateHabitCategory

	case StateHabitCategory:
		if !validCategory(text) {
			msg := tgbotapi.NewMessage(chatID, "Elige una categoría con los botones, por favor.")
			msg.ReplyMarkup = categoryKeyboard()
			t.send(msg)
			return
		}
		state.Draft.Category = models.ParseCategory(text)

		msg := tgbotapi.NewMessage(chatID, "¿El objetivo es diario o semanal?")
		msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(string(models.FrequencyDaily)),
				tgbotapi.NewKeyboardButton(string(models.FrequencyWeekly)),
			),
		)
		t.send(msg)
		state.CurrentState = StateHabitFrequency

	case StateHabitFrequency:
		freq := models.ParseFrequency(text)
		if freq != models.FrequencyDaily && freq != models.FrequencyWeekly {
			t.reply(chatID, "Responde \"diaria\" o \"semanal\", por favor.")
			return
		}
		state.Draft.Frequency = freq

		msg := tgbotapi.NewMessage(chatID, "¿Cuál es tu objetivo? Descríbelo con sus unidades (por ejemplo: \"correr 5 km cada día\" o \"leer 100 páginas a la semana\").")
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		t.send(msg)
		state.CurrentState = StateHabitGoal

	case StateHabitGoal:
		if text == "" {
			t.reply(chatID, "Describe tu objetivo, por favor.")
			return
		}
		state.Draft.Goal = text
		unit, quantity := t.gptClient.ParseGoal(ctx, text, state.Draft.Frequency)
		state.Draft.GoalUnit = unit
		state.Draft.GoalQuantity = quantity
		state.Draft.Icon = habitIcon(state.Draft.Category)
		state.Draft.Normalize()
		state.Habits = append(state.Habits, state.Draft)

		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Apuntado: %s %s, objetivo %.1f %s (%s). ¿Quieres añadir otro hábito?",
			state.Draft.Icon, state.Draft.Name, state.Draft.GoalQuantity, state.Draft.GoalUnit, state.Draft.Frequency))
		msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("Sí"),
				tgbotapi.NewKeyboardButton("No"),
			),
		)
		t.send(msg)
		state.CurrentState = StateHabitMore

	case StateHabitMore:
		switch strings.ToLower(text) {
		case "sí", "si":
			state.CurrentState = StateHabitName
			msg := tgbotapi.NewMessage(chatID, "¿Cómo se llama el siguiente hábito?")
			msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
			t.send(msg)
		case "no":
			if err := t.db.ReplaceHabits(ctx, userID, state.Habits); err != nil {
				t.logger.Errorw("failed to save habits", "error", err, "user_id", userID)
				t.reply(chatID, "Lo siento, no he podido guardar tus hábitos. Inténtalo de nuevo más tarde.")
				return
			}
			state.CurrentState = StateLogging
			state.Habits = nil
			msg := tgbotapi.NewMessage(chatID, "🎉 ¡Listo! A partir de ahora cuéntame lo que vayas haciendo y yo llevaré la cuenta. Usa /informe cuando quieras ver tu semana.")
			msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
			t.send(msg)
		default:
			t.reply(chatID, "Responde \"Sí\" o \"No\", por favor.")
		}

	case StateLogging:
		if isQuestion(text) {
			t.handleProgressQuestion(ctx, chatID, userID, text)
			return
		}
		t.handleActivity(ctx, chatID, userID, text)

	default:
		t.setState(userID, &models.UserState{TelegramID: userID, CurrentState: StateLogging})
		t.reply(chatID, "Me había perdido, empecemos de nuevo. Cuéntame qué has hecho o usa /help.")
	}
}

// handleActivity interprets a free-text report, records one action per
// activity mentioned and replies with an undo button per action.
func (t *TelegramBot) handleActivity(ctx context.Context, chatID, userID int64, text string) {
	if text == "" {
		return
	}

	habits, err := t.db.GetHabits(ctx, userID)
	if err != nil {
		t.logger.Errorw("failed to load habits", "error", err, "user_id", userID)
		t.reply(chatID, "Lo siento, ha ocurrido un error. Inténtalo de nuevo más tarde.")
		return
	}
	if len(habits) == 0 {
		t.reply(chatID, "Aún no tienes hábitos registrados. Usa /start para crearlos.")
		return
	}

	byName := make(map[string]models.Habit, len(habits))
	names := make([]string, 0, len(habits))
	for _, h := range habits {
		byName[h.Name] = h
		names = append(names, h.Name)
	}

	for _, activity := range t.gptClient.SplitActivities(ctx, text) {
		name := t.gptClient.MatchHabit(ctx, activity, names)
		if name == "" {
			t.reply(chatID, fmt.Sprintf("No he sabido relacionar \"%s\" con ninguno de tus hábitos.", activity))
			continue
		}
		habit := byName[name]

		quantity := t.gptClient.NormalizeQuantity(ctx, activity, habit.Goal, habit.GoalUnit)
		if quantity < 0 {
			t.reply(chatID, fmt.Sprintf("Las unidades de \"%s\" no encajan con tu objetivo \"%s\". ¿Puedes decírmelo en %s?",
				activity, habit.Goal, habit.GoalUnit))
			continue
		}

		action := &models.Action{
			UserID:      userID,
			Habit:       habit.Name,
			PerformedAt: t.gptClient.ExtractDate(ctx, activity, time.Now()),
			Text:        activity,
			Quantity:    quantity,
		}
		if err := t.db.SaveAction(ctx, action); err != nil {
			t.logger.Errorw("failed to save action", "error", err, "user_id", userID, "habit", habit.Name)
			t.reply(chatID, "Lo siento, no he podido anotar esa actividad. Inténtalo de nuevo.")
			continue
		}

		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s Anotado: %s, %.1f %s el %s.",
			habit.Icon, habit.Name, action.Quantity, habit.GoalUnit, action.PerformedAt.Format("02/01/2006")))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Vale", fmt.Sprintf("ok:%d", action.ID)),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Deshacer", fmt.Sprintf("del:%d", action.ID)),
			),
		)
		t.send(msg)
	}
}

// handleProgressQuestion answers "¿cuánto llevo esta semana?" style
// questions from the current week's series for the habit in question.
func (t *TelegramBot) handleProgressQuestion(ctx context.Context, chatID, userID int64, text string) {
	habits, err := t.db.GetHabits(ctx, userID)
	if err != nil {
		t.logger.Errorw("failed to load habits", "error", err, "user_id", userID)
		t.reply(chatID, "Lo siento, ha ocurrido un error. Inténtalo de nuevo más tarde.")
		return
	}
	names := make([]string, 0, len(habits))
	for _, h := range habits {
		names = append(names, h.Name)
	}

	name := t.gptClient.MatchHabit(ctx, text, names)
	if name == "" {
		t.reply(chatID, "No he sabido a qué hábito te refieres. Pregúntame por uno de los tuyos (mira /habitos).")
		return
	}
	habit, err := t.db.GetHabit(ctx, userID, name)
	if err != nil || habit == nil {
		t.logger.Errorw("failed to load habit", "error", err, "user_id", userID, "habit", name)
		t.reply(chatID, "Lo siento, ha ocurrido un error. Inténtalo de nuevo más tarde.")
		return
	}

	now := time.Now()
	rollup, err := t.db.CurrentWeekRollup(ctx, userID, now)
	if err != nil {
		t.logger.Errorw("failed to load current week rollup", "error", err, "user_id", userID)
		t.reply(chatID, "Lo siento, ha ocurrido un error. Inténtalo de nuevo más tarde.")
		return
	}

	var achieved float64
	for _, row := range report.BuildSeries(rollup, now) {
		if row.Habit == habit.Name {
			achieved += row.Total
		}
	}

	if answer := t.gptClient.ProgressMessage(ctx, text, habit, achieved); answer != "" {
		t.reply(chatID, answer)
		return
	}
	t.reply(chatID, fmt.Sprintf("Esta semana llevas %.1f %s de %s (objetivo: %s).",
		achieved, habit.GoalUnit, habit.Name, habit.Goal))
}

func (t *TelegramBot) handlePremiumCommand(ctx context.Context, chatID, userID int64) {
	user, err := t.db.GetUser(ctx, userID)
	if err != nil {
		t.logger.Errorw("failed to load user", "error", err, "user_id", userID)
		t.reply(chatID, "Lo siento, ha ocurrido un error. Inténtalo de nuevo más tarde.")
		return
	}
	if user == nil {
		t.reply(chatID, "Primero regístrate con /start.")
		return
	}
	if user.Premium {
		t.reply(chatID, "Ya tienes premium activo: tu /informe incluye la comparación con la comunidad. 💪")
		return
	}

	successURL := fmt.Sprintf("https://t.me/%s?start=premium_success", t.bot.Self.UserName)
	cancelURL := fmt.Sprintf("https://t.me/%s?start=premium_cancel", t.bot.Self.UserName)

	sessionID, checkoutURL, err := t.stripeClient.CreateCheckoutSession(userID, successURL, cancelURL)
	if err != nil {
		t.logger.Errorw("failed to create Stripe session", "error", err, "user_id", userID)
		t.reply(chatID, "No he podido crear la sesión de pago. Inténtalo de nuevo más tarde.")
		return
	}

	if state, ok := t.getState(userID); ok {
		state.StripeSessionID = sessionID
	}

	msg := tgbotapi.NewMessage(chatID, "Con premium, tu informe semanal compara tu actividad de deporte y estilo de vida con la media de la comunidad. Pulsa para activarlo:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Activar premium", checkoutURL),
		),
	)
	t.send(msg)
}

func (t *TelegramBot) handleCallbackQuery(ctx context.Context, callbackQuery *tgbotapi.CallbackQuery) {
	data := callbackQuery.Data
	chatID := callbackQuery.Message.Chat.ID

	callback := tgbotapi.NewCallback(callbackQuery.ID, "")

	if strings.HasPrefix(data, "ok:") {
		callback.Text = "¡Anotado!"
		// Strip the keyboard so the choice cannot be repeated.
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, callbackQuery.Message.MessageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		t.send(edit)
	}

	if id, ok := strings.CutPrefix(data, "del:"); ok {
		actionID, err := strconv.ParseInt(id, 10, 64)
		if err == nil {
			action, getErr := t.db.GetAction(ctx, actionID)
			if getErr == nil && action != nil && action.UserID == callbackQuery.From.ID {
				if delErr := t.db.DeleteAction(ctx, actionID); delErr != nil {
					t.logger.Errorw("failed to delete action", "error", delErr, "action_id", actionID)
				} else {
					callback.Text = "Anotación eliminada"
					edit := tgbotapi.NewEditMessageText(chatID, callbackQuery.Message.MessageID,
						fmt.Sprintf("❌ Eliminado: %s", action.Text))
					t.send(edit)
				}
			}
		}
	}

	if _, err := t.bot.Request(callback); err != nil {
		t.logger.Errorw("failed to answer callback", "error", err)
	}
}

// handlePremiumActivated flips the premium flag once Stripe confirms the
// payment, and tells the user.
func (t *TelegramBot) handlePremiumActivated(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	t.logger.Infow("activating premium", "user_id", userID)

	if err := t.db.SetPremium(ctx, userID, true); err != nil {
		t.logger.Errorw("failed to set premium", "error", err, "user_id", userID)
		return
	}

	user, err := t.db.GetUser(ctx, userID)
	if err != nil || user == nil {
		t.logger.Errorw("failed to load user after premium activation", "error", err, "user_id", userID)
		return
	}

	t.reply(user.ChatID, "🎉 ¡Premium activado! Tu /informe semanal ahora incluye la comparación con la comunidad.")
}

func (t *TelegramBot) sendWeeklyReport(ctx context.Context, chatID, userID int64) {
	bundle, err := t.reporter.ComputeWeeklyReport(ctx, userID)
	if err != nil {
		t.logger.Errorw("failed to compute weekly report", "error", err, "user_id", userID)
		t.reply(chatID, "No he podido preparar tu informe. Inténtalo de nuevo más tarde.")
		return
	}
	if bundle == nil {
		t.reply(chatID, "Todavía no has anotado nada esta semana. ¡Cuéntame qué has hecho y empezamos! 💪")
		return
	}

	user, err := t.db.GetUser(ctx, userID)
	if err != nil {
		t.logger.Errorw("failed to load user", "error", err, "user_id", userID)
	}
	premium := user != nil && user.Premium

	t.reply(chatID, formatReport(bundle, premium))
}

// formatReport renders the weekly bundle as chat text. The peer overlay
// only shows for premium users even though the bundle always carries it.
func formatReport(bundle *report.Bundle, premium bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 Informe de la semana del %s\n\n", bundle.WeekStart.Format("02/01/2006"))
	fmt.Fprintf(&b, "🏅 Puntos: %.1f de %.0f posibles\n", bundle.TotalPoints, bundle.MaxPoints)

	cats := make([]models.Category, 0, len(bundle.CategoryTotals))
	for cat := range bundle.CategoryTotals {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	b.WriteString("\nPor categoría:\n")
	for _, cat := range cats {
		fmt.Fprintf(&b, "  %s %s: %.1f puntos", habitIcon(cat), cat, bundle.CategoryTotals[cat])
		if days, ok := bundle.DaysMet[cat]; ok {
			fmt.Fprintf(&b, " (%d/7 días cumplidos)", days)
		}
		b.WriteString("\n")
	}

	weekdays := []string{"L", "M", "X", "J", "V", "S", "D"}
	b.WriteString("\nActividad por día:\n")
	for _, cat := range cats {
		series, ok := bundle.CategorySeries[cat]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %s:", cat)
		for i, v := range series {
			fmt.Fprintf(&b, " %s %.0f", weekdays[i], v)
		}
		b.WriteString("\n")
	}

	if premium && len(bundle.PeerSeries) > 0 {
		b.WriteString("\n🌍 Media de la comunidad:\n")
		for _, cat := range cats {
			series, ok := bundle.PeerSeries[cat]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %s:", cat)
			for i, v := range series {
				fmt.Fprintf(&b, " %s %.0f", weekdays[i], v)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func categoryKeyboard() tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, (len(categoryButtons)+1)/2)
	for i := 0; i < len(categoryButtons); i += 2 {
		row := []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(categoryButtons[i])}
		if i+1 < len(categoryButtons) {
			row = append(row, tgbotapi.NewKeyboardButton(categoryButtons[i+1]))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}

func validCategory(text string) bool {
	for _, c := range categoryButtons {
		if strings.EqualFold(text, c) {
			return true
		}
	}
	return false
}

func isQuestion(text string) bool {
	return strings.Contains(text, "?") || strings.Contains(text, "¿")
}

func habitIcon(cat models.Category) string {
	switch cat {
	case models.CategoryWalk:
		return "🚶"
	case models.CategorySport:
		return "🏃"
	case models.CategoryLifestyle:
		return "🌱"
	case models.CategoryTime:
		return "⏳"
	case models.CategoryDiet:
		return "🥗"
	case models.CategoryQuit:
		return "🚭"
	default:
		return "✅"
	}
}
