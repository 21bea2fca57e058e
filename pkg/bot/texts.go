package bot

// user facing texts
const (
	btnNewDialog    = "Начать новый диалог"
	btnInstructions = "Инструкция"

	txtWelcome        = "Добро пожаловать! Выберите нужный пункт меню:"
	txtChooseCompany  = "Новый диалог начат. Выберите пожалуйста компанию, по чьей технической документации вы хотите поговорить:"
	txtChooseModel    = "Вы выбрали компанию %s. Теперь выберите модель для общения:"
	txtModelChosen    = "Вы выбрали модель %s и техническую документацию компании %s. Можете писать ваш запрос."
	txtNoCompany      = "Компания не выбрана, пожалуйста, выберите компанию."
	txtNoModel        = "Модель не выбрана, пожалуйста, выберите модель."
	txtProcessing     = "⏳ Обработка вашего запроса..."
	txtBadModel       = "Ошибка: неверно выбрана модель."
	txtAPIError       = "Ошибка при обращении к API."
	txtFailure        = "Произошла ошибка при обработке запроса."
	txtEmptyAnswer    = "Пустой ответ от ассистента."
	txtUnknownChoice  = "Неизвестный выбор, начните новый диалог."
	txtSystemCompany  = "Компания: %s"
	txtDftInstruction = "1. Нажмите «" + btnNewDialog + "».\n" +
		"2. Выберите компанию, по документации которой нужен ответ.\n" +
		"3. Выберите модель.\n" +
		"4. Задайте вопрос обычным сообщением. Ответ появится в том же сообщении по мере генерации, " +
		"а под ним будут ссылки на страницы документации и видео."
)
