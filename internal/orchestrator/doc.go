// Package orchestrator управляет жизненным циклом задач.
//
// Orchestrator отвечает за:
//   - Приём задач и валидацию типа против реестра
//   - Асинхронную декомпозицию задач на юниты (все или ни одного)
//   - Выдачу юнитов воркерам по pull-модели (Poll)
//   - Приём результатов, retry-учёт и отклонение устаревших отчётов
//   - Агрегацию результатов юнитов в результат задачи
//   - Purge умолкнувших воркеров с возвратом их юнитов в очередь
//
// Orchestrator — это "мозг" системы, который координирует выполнение.
package orchestrator
