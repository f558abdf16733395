package detect

// BuildEnsembles wires the full strategy set into one ensemble per category.
// reader may be nil (OCR disabled), in which case the OCR-backed strategies
// are left out and the pixel strategies carry each category alone.
func BuildEnsembles(reader TextReader) map[Category]*Ensemble {
	out := make(map[Category]*Ensemble)

	cardStrategies := []Strategy{NewCardSignatureStrategy(), NewCardPipStrategy()}
	potStrategies := []Strategy{NewAmountDigitStrategy()}
	playerStrategies := []Strategy{NewSeatOccupancyStrategy()}
	actionStrategies := []Strategy{NewActionColorStrategy()}
	blindsStrategies := []Strategy{NewBlindsTitleStrategy()}
	dealerStrategies := []Strategy{NewButtonColorStrategy(), NewButtonShapeStrategy()}
	timeoutStrategies := []Strategy{NewTimerBarStrategy()}

	if reader != nil {
		cardStrategies = append([]Strategy{NewCardOCRStrategy(reader)}, cardStrategies...)
		potStrategies = append([]Strategy{NewAmountOCRStrategy(reader)}, potStrategies...)
		playerStrategies = append([]Strategy{NewPlayerOCRStrategy(reader)}, playerStrategies...)
		actionStrategies = append([]Strategy{NewActionTextStrategy(reader)}, actionStrategies...)
		blindsStrategies = append([]Strategy{NewBlindsOCRStrategy(reader)}, blindsStrategies...)
		timeoutStrategies = append([]Strategy{NewTimerTextStrategy(reader)}, timeoutStrategies...)
	}

	out[CategoryCards] = NewEnsemble(CategoryCards, cardStrategies...)
	out[CategoryPot] = NewEnsemble(CategoryPot, potStrategies...)
	out[CategoryPlayers] = NewEnsemble(CategoryPlayers, playerStrategies...)
	out[CategoryActions] = NewEnsemble(CategoryActions, actionStrategies...)
	out[CategoryBlinds] = NewEnsemble(CategoryBlinds, blindsStrategies...)
	out[CategoryDealer] = NewEnsemble(CategoryDealer, dealerStrategies...)
	out[CategoryTimeouts] = NewEnsemble(CategoryTimeouts, timeoutStrategies...)
	return out
}
