// Package cli реализует инструмент командной строки NeuroWeave.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с NeuroWeave API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для подачи задач, наблюдения за воркерами
// и управления расписаниями.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для NeuroWeave API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (dataResponse, listResponse, errorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	tasks, err := client.ListTasks()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.Encoder с отступами) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: neuroweave task list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - task: list, submit, show, units
//   - weaver: list, show
//   - schedule: list, create, show, update, delete, enable, disable
//
// Каждая группа создаётся через фабричную функцию (NewTaskCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
